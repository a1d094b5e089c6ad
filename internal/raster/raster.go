// Package raster turns a source PDF into an ordered list of page images.
package raster

import (
	"context"
	"errors"
)

// ErrNoPages is returned when a document rasterizes to zero pages.
// The pipeline treats this as a hard failure, not an empty success.
var ErrNoPages = errors.New("document produced no pages")

// Rasterizer renders a document into one PNG image per page, in page order.
type Rasterizer interface {
	Render(ctx context.Context, document []byte) ([][]byte, error)
}
