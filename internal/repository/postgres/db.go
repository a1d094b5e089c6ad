// Package postgres persists jobs, page artifacts, and segmentations in
// PostgreSQL via database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
)

// Schema is the DDL for the pipeline's tables. Applied idempotently at
// startup; anything more elaborate belongs to a real migration tool.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                UUID PRIMARY KEY,
	source_filename   TEXT NOT NULL DEFAULT '',
	source_key        TEXT NOT NULL,
	initial_doc_key   TEXT NOT NULL DEFAULT '',
	final_doc_key     TEXT NOT NULL DEFAULT '',
	final_render_key  TEXT NOT NULL DEFAULT '',
	model_id          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	error_message     TEXT NOT NULL DEFAULT '',
	placeholder_tasks JSONB,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	completed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);

CREATE TABLE IF NOT EXISTS page_artifacts (
	job_id      UUID NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL,
	key         TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, page_number)
);

CREATE TABLE IF NOT EXISTS segmentations (
	id           BIGSERIAL PRIMARY KEY,
	job_id       UUID NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
	page_number  INTEGER NOT NULL,
	x            DOUBLE PRECISION NOT NULL,
	y            DOUBLE PRECISION NOT NULL,
	width        DOUBLE PRECISION NOT NULL,
	height       DOUBLE PRECISION NOT NULL,
	label        TEXT NOT NULL DEFAULT '',
	enhanced_key TEXT NOT NULL DEFAULT '',
	use_enhanced BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segmentations_job_page ON segmentations (job_id, page_number);
`

// Open connects to the database and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
