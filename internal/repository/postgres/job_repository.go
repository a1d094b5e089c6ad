package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/conversion"
)

// JobRepository implements conversion.JobRepository.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a job repository.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, job *conversion.Job) error {
	tasks, err := marshalTasks(job.PlaceholderTasks)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO jobs (id, source_filename, source_key, initial_doc_key, final_doc_key, final_render_key,
                  model_id, status, error_message, placeholder_tasks, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, job.ID, job.SourceFilename, job.SourceKey, job.InitialDocKey, job.FinalDocKey, job.FinalRenderKey,
		job.ModelID, string(job.Status), job.ErrorMessage, tasks, job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get returns a job by id.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*conversion.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, source_filename, source_key, initial_doc_key, final_doc_key, final_render_key,
       model_id, status, error_message, placeholder_tasks, created_at, updated_at, completed_at
FROM jobs
WHERE id = $1
`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", conversion.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update writes the full mutable row in one statement. Readers see status
// and artifact keys move together; the last writer wins.
func (r *JobRepository) Update(ctx context.Context, job *conversion.Job) error {
	tasks, err := marshalTasks(job.PlaceholderTasks)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET initial_doc_key = $2, final_doc_key = $3, final_render_key = $4, model_id = $5,
    status = $6, error_message = $7, placeholder_tasks = $8, updated_at = $9, completed_at = $10
WHERE id = $1
`, job.ID, job.InitialDocKey, job.FinalDocKey, job.FinalRenderKey, job.ModelID,
		string(job.Status), job.ErrorMessage, tasks, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s", conversion.ErrNotFound, job.ID)
	}
	return nil
}

// marshalTasks preserves the nil vs empty distinction: nil means Stage 1 has
// not run, an empty map means it ran and found nothing.
func marshalTasks(tasks map[string]string) (any, error) {
	if tasks == nil {
		return nil, nil
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("marshal placeholder tasks: %w", err)
	}
	return data, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*conversion.Job, error) {
	var job conversion.Job
	var status string
	var tasks []byte
	err := row.Scan(
		&job.ID,
		&job.SourceFilename,
		&job.SourceKey,
		&job.InitialDocKey,
		&job.FinalDocKey,
		&job.FinalRenderKey,
		&job.ModelID,
		&status,
		&job.ErrorMessage,
		&tasks,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = conversion.Status(status)
	if tasks != nil {
		if err := json.Unmarshal(tasks, &job.PlaceholderTasks); err != nil {
			return nil, fmt.Errorf("unmarshal placeholder tasks: %w", err)
		}
	}
	return &job, nil
}
