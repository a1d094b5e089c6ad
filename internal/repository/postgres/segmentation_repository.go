package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/conversion"
)

// SegmentationRepository implements conversion.SegmentationRepository.
type SegmentationRepository struct {
	db *sql.DB
}

// NewSegmentationRepository creates a segmentation repository.
func NewSegmentationRepository(db *sql.DB) *SegmentationRepository {
	return &SegmentationRepository{db: db}
}

// Replace swaps the job's segmentation set transactionally and returns the
// inserted rows with their assigned ids.
func (r *SegmentationRepository) Replace(ctx context.Context, jobID uuid.UUID, segs []conversion.Segmentation) ([]conversion.Segmentation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace segmentations: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segmentations WHERE job_id = $1`, jobID); err != nil {
		return nil, fmt.Errorf("delete stale segmentations: %w", err)
	}

	now := time.Now().UTC()
	out := make([]conversion.Segmentation, 0, len(segs))
	for _, seg := range segs {
		seg.JobID = jobID
		seg.CreatedAt = now
		seg.UpdatedAt = now
		row := tx.QueryRowContext(ctx, `
INSERT INTO segmentations (job_id, page_number, x, y, width, height, label, enhanced_key, use_enhanced, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id
`, seg.JobID, seg.PageNumber, seg.Rect.X, seg.Rect.Y, seg.Rect.Width, seg.Rect.Height,
			seg.Label, seg.EnhancedKey, seg.UseEnhanced, seg.CreatedAt, seg.UpdatedAt)
		if err := row.Scan(&seg.ID); err != nil {
			return nil, fmt.Errorf("insert segmentation %q: %w", seg.Label, err)
		}
		out = append(out, seg)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace segmentations: %w", err)
	}
	return out, nil
}

// List returns the job's segmentations ordered by page then id.
func (r *SegmentationRepository) List(ctx context.Context, jobID uuid.UUID) ([]conversion.Segmentation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, job_id, page_number, x, y, width, height, label, enhanced_key, use_enhanced, created_at, updated_at
FROM segmentations
WHERE job_id = $1
ORDER BY page_number, id
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list segmentations: %w", err)
	}
	defer rows.Close()

	var segs []conversion.Segmentation
	for rows.Next() {
		seg, err := scanSegmentation(rows)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segmentations: %w", err)
	}
	return segs, nil
}

// Get returns one segmentation belonging to the job.
func (r *SegmentationRepository) Get(ctx context.Context, jobID uuid.UUID, segID int64) (*conversion.Segmentation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, job_id, page_number, x, y, width, height, label, enhanced_key, use_enhanced, created_at, updated_at
FROM segmentations
WHERE job_id = $1 AND id = $2
`, jobID, segID)

	seg, err := scanSegmentation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: segmentation %d", conversion.ErrNotFound, segID)
		}
		return nil, fmt.Errorf("get segmentation: %w", err)
	}
	return &seg, nil
}

// SetEnhanced records the enhanced crop key and whether to substitute it.
func (r *SegmentationRepository) SetEnhanced(ctx context.Context, segID int64, enhancedKey string, useEnhanced bool) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE segmentations
SET enhanced_key = $2, use_enhanced = $3, updated_at = $4
WHERE id = $1
`, segID, enhancedKey, useEnhanced, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set enhanced: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set enhanced rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: segmentation %d", conversion.ErrNotFound, segID)
	}
	return nil
}

func scanSegmentation(row rowScanner) (conversion.Segmentation, error) {
	var seg conversion.Segmentation
	err := row.Scan(
		&seg.ID,
		&seg.JobID,
		&seg.PageNumber,
		&seg.Rect.X,
		&seg.Rect.Y,
		&seg.Rect.Width,
		&seg.Rect.Height,
		&seg.Label,
		&seg.EnhancedKey,
		&seg.UseEnhanced,
		&seg.CreatedAt,
		&seg.UpdatedAt,
	)
	if err != nil {
		return conversion.Segmentation{}, err
	}
	return seg, nil
}
