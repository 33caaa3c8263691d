// Package video provides seekable video handles for analysis and a
// wall-clock player for overlay playback.
package video

import (
	"context"
	"errors"
	"image"
)

// ErrNoFrame is returned when a source has no decoded frame at its position
var ErrNoFrame = errors.New("video: no frame at current position")

// Source is a seekable video with a current frame.
//
// Seek blocks until the frame at t is available. Frame returns the frame at the
// last completed seek position; it must not be called while a seek is in flight.
type Source interface {
	// Duration returns the media length in seconds. The second value is false
	// until the duration is known.
	Duration() (float64, bool)
	// Size returns the intrinsic frame dimensions
	Size() (int, int)
	Seek(ctx context.Context, t float64) error
	Frame() (image.Image, error)
}
