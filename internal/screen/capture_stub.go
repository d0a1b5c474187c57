//go:build !darwin && !windows

package screen

import (
	"context"
	"image"
)

type systemCapturer struct{}

// NewSystem returns the platform capturer.
func NewSystem() Capturer {
	return systemCapturer{}
}

func (systemCapturer) Capture(ctx context.Context) (*image.RGBA, error) {
	return nil, ErrUnsupported
}
