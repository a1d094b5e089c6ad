// Package transcribe sends page images to a vision model and returns the raw
// transcription response for the placeholder protocol to parse.
package transcribe

import (
	"context"
)

// Result is the raw outcome of a transcription call. The response text is
// returned untouched; parsing belongs to the placeholder protocol. A failed
// call is always an explicit error, never fallback content disguised as
// success.
type Result struct {
	Raw       string // full model response text
	ModelUsed string
}

// Transcriber converts a page image into raw transcription output.
type Transcriber interface {
	Transcribe(ctx context.Context, pageImage []byte, modelID string) (*Result, error)
}
