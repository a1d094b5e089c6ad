package conversion

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when an entity does not exist.
var ErrNotFound = errors.New("not found")

// JobRepository persists job records. Update writes the full mutable row in
// one statement so concurrent readers observe status and artifact keys
// together, never a new status with stale keys.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	Update(ctx context.Context, job *Job) error
}

// PageRepository persists rasterized page artifacts. ReplacePages is
// transactional: either every page record for the job is written or none.
type PageRepository interface {
	ReplacePages(ctx context.Context, jobID uuid.UUID, pages []PageArtifact) error
	ListPages(ctx context.Context, jobID uuid.UUID) ([]PageArtifact, error)
	DeletePages(ctx context.Context, jobID uuid.UUID) error
}

// SegmentationRepository persists user-declared regions. The pipeline only
// reads; writes come from the user-facing segmentation step.
type SegmentationRepository interface {
	Replace(ctx context.Context, jobID uuid.UUID, segs []Segmentation) ([]Segmentation, error)
	List(ctx context.Context, jobID uuid.UUID) ([]Segmentation, error)
	Get(ctx context.Context, jobID uuid.UUID, segID int64) (*Segmentation, error)
	SetEnhanced(ctx context.Context, segID int64, enhancedKey string, useEnhanced bool) error
}
