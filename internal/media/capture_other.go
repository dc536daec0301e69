//go:build !linux

package media

import (
	"vox_chat/native/internal/domain"

	"github.com/pion/mediadevices"
)

// capture reports no capability on platforms without mediadevices drivers
// wired in (V4L2/malgo are Linux-only here). The call attempt is aborted
// upstream.
func capture(_ domain.CallType) (mediadevices.MediaStream, *mediadevices.CodecSelector, error) {
	return nil, nil, domain.ErrMediaUnavailable
}
