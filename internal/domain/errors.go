package domain

import "errors"

var (
	// ErrMediaUnavailable means the platform offers no capture capability.
	ErrMediaUnavailable = errors.New("no media capture device available")

	// ErrMediaPermissionDenied means the user declined capture access.
	ErrMediaPermissionDenied = errors.New("media permission denied")

	// ErrBusy means a call session is already in progress on this client.
	ErrBusy = errors.New("another call is already active")
)
