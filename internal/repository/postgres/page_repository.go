package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/conversion"
)

// PageRepository implements conversion.PageRepository.
type PageRepository struct {
	db *sql.DB
}

// NewPageRepository creates a page artifact repository.
func NewPageRepository(db *sql.DB) *PageRepository {
	return &PageRepository{db: db}
}

// ReplacePages deletes any existing page rows for the job and inserts the
// new set in a single transaction: either the job's page mapping is fully
// consistent or untouched.
func (r *PageRepository) ReplacePages(ctx context.Context, jobID uuid.UUID, pages []conversion.PageArtifact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace pages: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM page_artifacts WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete stale pages: %w", err)
	}
	for _, page := range pages {
		_, err := tx.ExecContext(ctx, `
INSERT INTO page_artifacts (job_id, page_number, key, created_at)
VALUES ($1,$2,$3,$4)
`, jobID, page.PageNumber, page.Key, page.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert page %d: %w", page.PageNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace pages: %w", err)
	}
	return nil
}

// ListPages returns the job's pages ordered by page number.
func (r *PageRepository) ListPages(ctx context.Context, jobID uuid.UUID) ([]conversion.PageArtifact, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT job_id, page_number, key, created_at
FROM page_artifacts
WHERE job_id = $1
ORDER BY page_number
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []conversion.PageArtifact
	for rows.Next() {
		var page conversion.PageArtifact
		if err := rows.Scan(&page.JobID, &page.PageNumber, &page.Key, &page.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// DeletePages removes all page rows for the job.
func (r *PageRepository) DeletePages(ctx context.Context, jobID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM page_artifacts WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	return nil
}
