package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/inkwell-scan/inkwell/internal/conversion"
)

// ErrDegenerateCrop is returned when a rectangle clamps to zero area on the
// page it targets. Callers skip the segmentation rather than failing the job.
var ErrDegenerateCrop = errors.New("crop rectangle has zero area after clamping")

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropRegion extracts the pixel region described by a normalized rectangle
// from a PNG page image and re-encodes it as PNG. Coordinates are scaled by
// the page dimensions and clamped to the page bounds.
func CropRegion(pageImage []byte, rect conversion.Rect) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(pageImage))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}

	bounds := img.Bounds()
	pixels := pixelRect(rect, bounds)
	if pixels.Empty() {
		return nil, ErrDegenerateCrop
	}

	si, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("page image type %T does not support sub-images", img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, si.SubImage(pixels)); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// pixelRect converts a normalized rectangle to pixel coordinates within
// bounds. Rounding happens by truncation on the origin and the extent, the
// result is clamped so it never exceeds the page.
func pixelRect(rect conversion.Rect, bounds image.Rectangle) image.Rectangle {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	x0 := bounds.Min.X + int(rect.X*w)
	y0 := bounds.Min.Y + int(rect.Y*h)
	x1 := x0 + int(rect.Width*w)
	y1 := y0 + int(rect.Height*h)

	return image.Rect(x0, y0, x1, y1).Intersect(bounds)
}
