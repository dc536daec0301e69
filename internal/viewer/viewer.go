// Package viewer adapts the call state machine for a UI: it exposes a
// reactive view of the session and forwards user intents.
package viewer

import (
	"sync"
	"time"

	"vox_chat/native/internal/call"
	"vox_chat/native/internal/domain"
	"vox_chat/native/internal/summary"
)

// Intents is the call-control surface the UI drives.
type Intents interface {
	StartCall(conv domain.Conversation, callType domain.CallType) error
	AcceptCall() error
	RejectCall() error
	HangUp() error
	ToggleMute()
	ToggleCamera()
	Snapshot() call.View
}

// Viewer republishes machine view changes and ticks the elapsed duration once
// per second while a call is active. Register HandleChange with the machine's
// SetOnChange to complete the wiring.
type Viewer struct {
	calls Intents

	mu         sync.Mutex
	onChange   func(call.View)
	tickerStop chan struct{}
}

// New creates a Viewer over the given call intents.
func New(calls Intents) *Viewer {
	return &Viewer{calls: calls}
}

// SetOnChange registers the UI callback fired on every view change and on
// every duration tick.
func (v *Viewer) SetOnChange(fn func(call.View)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// HandleChange receives view changes from the state machine. It runs inside a
// machine transition, so it only manages the ticker and forwards the view.
func (v *Viewer) HandleChange(view call.View) {
	v.mu.Lock()
	if view.Status == call.StatusActive && v.tickerStop == nil {
		stop := make(chan struct{})
		v.tickerStop = stop
		go v.tick(stop)
	}
	if view.Status != call.StatusActive && v.tickerStop != nil {
		close(v.tickerStop)
		v.tickerStop = nil
	}
	fn := v.onChange
	v.mu.Unlock()

	if fn != nil {
		fn(view)
	}
}

func (v *Viewer) tick(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			view := v.calls.Snapshot()
			v.mu.Lock()
			fn := v.onChange
			v.mu.Unlock()
			if fn != nil {
				fn(view)
			}
		}
	}
}

// Snapshot returns the current call view.
func (v *Viewer) Snapshot() call.View {
	return v.calls.Snapshot()
}

// DurationLabel formats a view's elapsed duration for display.
func DurationLabel(view call.View) string {
	return summary.FormatDuration(view.Duration)
}

func (v *Viewer) StartCall(conv domain.Conversation, callType domain.CallType) error {
	return v.calls.StartCall(conv, callType)
}

func (v *Viewer) AcceptCall() error { return v.calls.AcceptCall() }

func (v *Viewer) RejectCall() error { return v.calls.RejectCall() }

func (v *Viewer) HangUp() error { return v.calls.HangUp() }

func (v *Viewer) ToggleMute() { v.calls.ToggleMute() }

func (v *Viewer) ToggleCamera() { v.calls.ToggleCamera() }
