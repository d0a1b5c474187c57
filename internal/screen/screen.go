// Package screen captures the main display as an RGBA frame.
package screen

import (
	"context"
	"errors"
	"image"
)

// ErrUnsupported is returned on platforms without a capture backend.
var ErrUnsupported = errors.New("screen capture not supported on this platform")

// ErrPermissionRequired indicates the OS refused the capture, usually
// because screen recording permission has not been granted.
var ErrPermissionRequired = errors.New("screen recording permission required")

// Capturer grabs one frame of the main display. Frame pixels may be
// denser than pointer coordinates on high-DPI displays.
type Capturer interface {
	Capture(ctx context.Context) (*image.RGBA, error)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context) (*image.RGBA, error)

func (f CapturerFunc) Capture(ctx context.Context) (*image.RGBA, error) {
	return f(ctx)
}
