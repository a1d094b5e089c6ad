package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/conversion"
	"github.com/inkwell-scan/inkwell/internal/latex"
	"github.com/inkwell-scan/inkwell/internal/raster"
)

// Converter runs Stage 1: rasterize the source document, transcribe the
// first page, and produce the initial typeset document with placeholder
// markers.
type Converter struct {
	deps   Deps
	logger *slog.Logger
}

// NewConverter creates the Stage 1 worker.
func NewConverter(deps Deps) *Converter {
	deps.normalize()
	return &Converter{
		deps:   deps,
		logger: deps.Logger.With("worker", "converter"),
	}
}

// Run executes Stage 1 for a job. Errors never escape: any failure marks
// the job Failed and cleans up artifacts uploaded during this attempt.
func (c *Converter) Run(ctx context.Context, jobID uuid.UUID) {
	start := time.Now()
	if c.deps.Metrics != nil {
		c.deps.Metrics.StageStarted("convert")
	}

	job, err := c.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		c.logger.Error("load job", "job_id", jobID, "error", err)
		c.finish(start, err)
		return
	}

	att := &convertAttempt{}
	err = c.run(ctx, job, att)
	if err != nil {
		c.fail(ctx, job, att, err)
	}
	c.finish(start, err)
}

// convertAttempt records what the current run has written, so failure
// cleanup never touches artifacts left by a previous attempt.
type convertAttempt struct {
	pages        []conversion.PageArtifact
	rowsReplaced bool
}

func (c *Converter) finish(start time.Time, err error) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.StageFinished("convert", time.Since(start), err)
	}
}

func (c *Converter) run(ctx context.Context, job *conversion.Job, att *convertAttempt) error {
	logger := c.logger.With("job_id", job.ID)
	logger.Info("conversion started", "source", job.SourceFilename, "model", job.ModelID)

	// A retried job must not point at outputs from a previous attempt.
	job.ResetOutputs()
	job.PlaceholderTasks = nil
	if err := c.setStatus(ctx, job, conversion.StatusRendering); err != nil {
		return err
	}

	source, err := c.deps.Store.Get(ctx, job.SourceKey)
	if err != nil {
		return fmt.Errorf("fetch source document: %w", err)
	}

	pages, err := c.deps.Rasterizer.Render(ctx, source)
	if err != nil {
		return fmt.Errorf("rasterize document: %w", err)
	}
	if len(pages) == 0 {
		return raster.ErrNoPages
	}
	logger.Info("document rasterized", "pages", len(pages))

	artifacts, err := c.uploadPages(ctx, job.ID, pages)
	if err != nil {
		return err
	}
	att.pages = artifacts
	if err := c.deps.Pages.ReplacePages(ctx, job.ID, artifacts); err != nil {
		return fmt.Errorf("persist page artifacts: %w", err)
	}
	att.rowsReplaced = true

	if err := c.setStatus(ctx, job, conversion.StatusProcessingTranscription); err != nil {
		return err
	}

	result, err := c.deps.Transcriber.Transcribe(ctx, pages[0], job.ModelID)
	if err != nil {
		return fmt.Errorf("transcribe page: %w", err)
	}
	logger.Info("transcription received", "model", result.ModelUsed, "chars", len(result.Raw))

	fragment, descBlock, err := latex.ParseTranscript(result.Raw)
	if err != nil {
		return err
	}
	tasks := latex.ParseDescriptions(descBlock, logger)

	doc := latex.EnsureTikz(latex.WrapFragment(fragment))
	docKey := initialDocKey(job.ID)
	if err := c.deps.Store.Put(ctx, docKey, []byte(doc), "text/x-tex"); err != nil {
		return fmt.Errorf("store initial document: %w", err)
	}

	job.InitialDocKey = docKey
	job.PlaceholderTasks = tasks
	next := conversion.StatusAwaitingSegmentation
	if len(tasks) == 0 {
		next = conversion.StatusSegmentationComplete
	}
	if err := c.setStatus(ctx, job, next); err != nil {
		return err
	}
	logger.Info("conversion complete", "status", job.Status, "placeholders", len(tasks))
	return nil
}

// uploadPages stores each page image under its deterministic key with
// bounded concurrency. On any failure it deletes the pages it already
// uploaded and returns the first error.
func (c *Converter) uploadPages(ctx context.Context, jobID uuid.UUID, pages [][]byte) ([]conversion.PageArtifact, error) {
	artifacts := make([]conversion.PageArtifact, len(pages))
	errs := make([]error, len(pages))

	sem := make(chan struct{}, c.deps.Workers)
	var wg sync.WaitGroup
	for i, image := range pages {
		wg.Add(1)
		go func(i int, image []byte) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			key := pageKey(jobID, i)
			if err := c.deps.Store.Put(ctx, key, image, "image/png"); err != nil {
				errs[i] = fmt.Errorf("store page %d: %w", i, err)
				return
			}
			artifacts[i] = conversion.PageArtifact{
				JobID:      jobID,
				PageNumber: i,
				Key:        key,
				CreatedAt:  time.Now().UTC(),
			}
		}(i, image)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			c.cleanupPageBlobs(ctx, jobID, artifacts)
			return nil, err
		}
	}
	return artifacts, nil
}

// cleanupPageBlobs removes page blobs uploaded during a failed attempt.
// Best-effort: cleanup problems are logged, never surfaced, the job's real
// failure must win.
func (c *Converter) cleanupPageBlobs(ctx context.Context, jobID uuid.UUID, artifacts []conversion.PageArtifact) {
	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Key != "" {
			keys = append(keys, a.Key)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := c.deps.Store.DeleteMany(ctx, keys); err != nil {
		c.logger.Warn("cleanup page blobs", "job_id", jobID, "error", err)
	}
}

// setStatus advances the job and persists it. An illegal transition is
// forced through with a warning rather than wedging the job: the worker owns
// the job for the duration of the stage and its view is authoritative.
func (c *Converter) setStatus(ctx context.Context, job *conversion.Job, next conversion.Status) error {
	if err := job.Transition(next); err != nil {
		c.logger.Warn("forcing status", "job_id", job.ID, "from", job.Status, "to", next)
		job.Status = next
		job.UpdatedAt = time.Now().UTC()
	}
	if err := c.deps.Jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist job status %s: %w", next, err)
	}
	return nil
}

// fail records the error on the job and removes the artifacts this attempt
// wrote. Pages, rows, and documents left by earlier attempts stay in place.
func (c *Converter) fail(ctx context.Context, job *conversion.Job, att *convertAttempt, cause error) {
	c.logger.Error("conversion failed", "job_id", job.ID, "error", cause)

	c.cleanupPageBlobs(ctx, job.ID, att.pages)
	if att.rowsReplaced {
		if err := c.deps.Pages.DeletePages(ctx, job.ID); err != nil {
			c.logger.Warn("cleanup page rows", "job_id", job.ID, "error", err)
		}
	}
	if job.InitialDocKey != "" {
		if err := c.deps.Store.DeleteMany(ctx, []string{job.InitialDocKey}); err != nil {
			c.logger.Warn("cleanup initial document", "job_id", job.ID, "error", err)
		}
		job.InitialDocKey = ""
	}

	job.Fail(cause.Error())
	if err := c.deps.Jobs.Update(ctx, job); err != nil {
		c.logger.Error("persist job failure", "job_id", job.ID, "error", err)
	}
}
