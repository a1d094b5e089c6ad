// Package enhance redraws cropped hand-drawn regions as clean figures
// suitable for a typeset document.
package enhance

import (
	"context"
)

// Enhancer regenerates a cropped region image from its placeholder
// description. The returned bytes are always PNG.
type Enhancer interface {
	Enhance(ctx context.Context, image []byte, description string) ([]byte, error)
}

// Passthrough returns the original image unchanged. Used when no image
// model is configured.
type Passthrough struct{}

// Enhance returns the input image as-is.
func (Passthrough) Enhance(_ context.Context, image []byte, _ string) ([]byte, error) {
	return image, nil
}
