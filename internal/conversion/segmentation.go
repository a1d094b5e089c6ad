package conversion

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PageArtifact is one rasterized page of a job's source document.
// Rows are written in bulk by Stage 1 and immutable afterwards.
type PageArtifact struct {
	JobID      uuid.UUID
	PageNumber int // 0-indexed, unique per job
	Key        string
	CreatedAt  time.Time
}

// Rect is a normalized bounding box. All values are in [0,1] with
// X+Width <= 1 and Y+Height <= 1.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Validate rejects malformed rectangles before anything is persisted.
func (r Rect) Validate() error {
	if r.X < 0 || r.X > 1 || r.Y < 0 || r.Y > 1 {
		return fmt.Errorf("origin out of range: x=%g y=%g", r.X, r.Y)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("width and height must be positive: w=%g h=%g", r.Width, r.Height)
	}
	if r.X+r.Width > 1 {
		return fmt.Errorf("x + width exceeds 1: %g", r.X+r.Width)
	}
	if r.Y+r.Height > 1 {
		return fmt.Errorf("y + height exceeds 1: %g", r.Y+r.Height)
	}
	return nil
}

// Segmentation is a user-declared region on a specific page. Label usually
// matches a placeholder name from the job's placeholder tasks, but unmatched
// labels are still rendered when a matching marker line exists in the
// document.
type Segmentation struct {
	ID          int64
	JobID       uuid.UUID
	PageNumber  int
	Rect        Rect
	Label       string
	EnhancedKey string // store key of the AI-redrawn crop, if generated
	UseEnhanced bool   // substitute the enhanced crop instead of the raw one
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the segmentation's rectangle and page number.
func (s *Segmentation) Validate() error {
	if s.PageNumber < 0 {
		return fmt.Errorf("page number must be >= 0, got %d", s.PageNumber)
	}
	if err := s.Rect.Validate(); err != nil {
		return fmt.Errorf("invalid rectangle: %w", err)
	}
	return nil
}
