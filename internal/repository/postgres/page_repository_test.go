package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/conversion"
)

func newPageRepoWithMock(t *testing.T) (*PageRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewPageRepository(db), mock, func() { _ = db.Close() }
}

func TestPageRepository_ReplacePages(t *testing.T) {
	t.Run("delete and insert in one transaction", func(t *testing.T) {
		repo, mock, done := newPageRepoWithMock(t)
		defer done()

		jobID := uuid.New()
		now := time.Now().UTC()
		pages := []conversion.PageArtifact{
			{JobID: jobID, PageNumber: 0, Key: "pages/x/page_0.png", CreatedAt: now},
			{JobID: jobID, PageNumber: 1, Key: "pages/x/page_1.png", CreatedAt: now},
		}

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM page_artifacts").
			WithArgs(jobID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO page_artifacts").
			WithArgs(jobID, 0, "pages/x/page_0.png", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO page_artifacts").
			WithArgs(jobID, 1, "pages/x/page_1.png", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := repo.ReplacePages(context.Background(), jobID, pages); err != nil {
			t.Fatalf("ReplacePages failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		repo, mock, done := newPageRepoWithMock(t)
		defer done()

		jobID := uuid.New()
		now := time.Now().UTC()
		pages := []conversion.PageArtifact{
			{JobID: jobID, PageNumber: 0, Key: "pages/x/page_0.png", CreatedAt: now},
		}

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM page_artifacts").
			WithArgs(jobID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO page_artifacts").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		if err := repo.ReplacePages(context.Background(), jobID, pages); err == nil {
			t.Fatal("expected error")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})
}

func TestPageRepository_ListPages(t *testing.T) {
	repo, mock, done := newPageRepoWithMock(t)
	defer done()

	jobID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT job_id, page_number, key, created_at").
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "page_number", "key", "created_at"}).
			AddRow(jobID, 0, "pages/x/page_0.png", now).
			AddRow(jobID, 1, "pages/x/page_1.png", now))

	pages, err := repo.ListPages(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].PageNumber != 0 || pages[1].PageNumber != 1 {
		t.Errorf("unexpected page order: %v", pages)
	}
}
