//go:build linux

package media

import (
	"fmt"
	"strings"

	"vox_chat/native/internal/domain"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
)

// capture opens the microphone and, for video calls, the camera via
// pion/mediadevices (V4L2 + malgo). The codec selector must also populate the
// peer connection's media engine, so it is returned alongside the stream.
func capture(callType domain.CallType) (mediadevices.MediaStream, *mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	if len(mediadevices.EnumerateDevices()) == 0 {
		return nil, nil, domain.ErrMediaUnavailable
	}

	constraints := mediadevices.MediaStreamConstraints{
		Codec: selector,
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	}
	if callType == domain.CallVideo {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only — MJPEG camera nodes can emit malformed
			// frames that poison the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "permission denied") {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrMediaPermissionDenied, err)
		}
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}

	return stream, selector, nil
}
