package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/blob"
	"github.com/inkwell-scan/inkwell/internal/conversion"
	"github.com/inkwell-scan/inkwell/internal/latex"
)

// Compiler runs Stage 2: crop segmented regions out of the page images,
// substitute them for the placeholder markers, and typeset the final
// document.
type Compiler struct {
	deps   Deps
	logger *slog.Logger
}

// NewCompiler creates the Stage 2 worker.
func NewCompiler(deps Deps) *Compiler {
	deps.normalize()
	return &Compiler{
		deps:   deps,
		logger: deps.Logger.With("worker", "compiler"),
	}
}

// Run executes Stage 2 for a job. Like Stage 1, errors never escape; a
// failed compilation leaves the job Failed with the typesetter's diagnostic
// as its error message. Re-running is safe: outputs land under the same
// keys and substitution is deterministic.
func (c *Compiler) Run(ctx context.Context, jobID uuid.UUID) {
	start := time.Now()
	if c.deps.Metrics != nil {
		c.deps.Metrics.StageStarted("compile")
	}

	job, err := c.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		c.logger.Error("load job", "job_id", jobID, "error", err)
		c.finish(start, err)
		return
	}

	err = c.run(ctx, job)
	if err != nil {
		c.fail(ctx, job, err)
	}
	c.finish(start, err)
}

func (c *Compiler) finish(start time.Time, err error) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.StageFinished("compile", time.Since(start), err)
	}
}

func (c *Compiler) run(ctx context.Context, job *conversion.Job) error {
	logger := c.logger.With("job_id", job.ID)
	logger.Info("compilation started")

	// The trigger path sets this before enqueueing, but a task can arrive
	// for a job someone mutated in between. The worker's view wins.
	if job.Status != conversion.StatusCompilationPending {
		logger.Warn("forcing status", "from", job.Status, "to", conversion.StatusCompilationPending)
		job.Status = conversion.StatusCompilationPending
	}
	job.ErrorMessage = ""
	job.FinalDocKey = ""
	job.FinalRenderKey = ""
	if err := c.deps.Jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist job status: %w", err)
	}

	if job.InitialDocKey == "" {
		return fmt.Errorf("job has no initial document")
	}
	docBytes, err := c.deps.Store.Get(ctx, job.InitialDocKey)
	if err != nil {
		return fmt.Errorf("fetch initial document: %w", err)
	}

	segs, err := c.deps.Segmentations.List(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list segmentations: %w", err)
	}
	artifacts, err := c.deps.Pages.ListPages(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list page artifacts: %w", err)
	}

	figures, aux := c.renderRegions(ctx, logger, job, segs, artifacts)

	final := latex.SubstitutePlaceholders(string(docBytes), figures)
	pdf, err := c.deps.Typesetter.Compile(ctx, final, aux)
	if err != nil {
		return err
	}

	docKey := finalDocKey(job.ID)
	renderKey := finalRenderKey(job.ID)
	if err := c.deps.Store.Put(ctx, docKey, []byte(final), "text/x-tex"); err != nil {
		return fmt.Errorf("store final document: %w", err)
	}
	if err := c.deps.Store.Put(ctx, renderKey, pdf, "application/pdf"); err != nil {
		c.cleanup(ctx, docKey)
		return fmt.Errorf("store final render: %w", err)
	}

	job.Complete(docKey, renderKey)
	if err := c.deps.Jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist completed job: %w", err)
	}
	logger.Info("compilation complete", "figures", len(figures), "pdf_bytes", len(pdf))
	return nil
}

// renderRegions turns segmentations into figure files: figures maps each
// label to the relative path substituted into the document, aux maps those
// paths to image bytes. Problems with individual segmentations are logged
// and skipped, never fatal; the marker stays in the document untouched.
func (c *Compiler) renderRegions(ctx context.Context, logger *slog.Logger, job *conversion.Job, segs []conversion.Segmentation, artifacts []conversion.PageArtifact) (map[string]string, map[string][]byte) {
	pageKeys := make(map[int]string, len(artifacts))
	for _, a := range artifacts {
		pageKeys[a.PageNumber] = a.Key
	}
	pages := c.fetchPages(ctx, logger, segs, pageKeys)

	figures := make(map[string]string)
	aux := make(map[string][]byte)
	for _, seg := range segs {
		segLog := logger.With("segmentation_id", seg.ID, "label", seg.Label, "page", seg.PageNumber)
		if seg.Label == "" {
			segLog.Warn("skipping unlabeled segmentation")
			continue
		}

		crop, err := c.regionImage(ctx, job, seg, pages)
		if err != nil {
			segLog.Warn("skipping segmentation", "error", err)
			continue
		}

		safe := latex.SanitizeLabel(seg.Label)
		path := fmt.Sprintf("figures/%s.png", safe)
		figures[seg.Label] = path
		aux[path] = crop
	}
	return figures, aux
}

// fetchPages downloads each page referenced by a segmentation exactly once,
// with bounded concurrency. Missing or failed pages are absent from the map.
func (c *Compiler) fetchPages(ctx context.Context, logger *slog.Logger, segs []conversion.Segmentation, pageKeys map[int]string) map[int][]byte {
	needed := make(map[int]string)
	for _, seg := range segs {
		if key, ok := pageKeys[seg.PageNumber]; ok {
			needed[seg.PageNumber] = key
		}
	}

	var mu sync.Mutex
	pages := make(map[int][]byte, len(needed))

	sem := make(chan struct{}, c.deps.Workers)
	var wg sync.WaitGroup
	for page, key := range needed {
		wg.Add(1)
		go func(page int, key string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := c.deps.Store.Get(ctx, key)
			if err != nil {
				logger.Warn("fetch page image", "page", page, "error", err)
				return
			}
			mu.Lock()
			pages[page] = data
			mu.Unlock()
		}(page, key)
	}
	wg.Wait()
	return pages
}

// regionImage returns the image substituted for a segmentation: the stored
// enhanced crop when the user selected it, otherwise a fresh crop from the
// page. A missing enhanced blob falls back to the raw crop.
func (c *Compiler) regionImage(ctx context.Context, job *conversion.Job, seg conversion.Segmentation, pages map[int][]byte) ([]byte, error) {
	if seg.UseEnhanced && seg.EnhancedKey != "" {
		data, err := c.deps.Store.Get(ctx, seg.EnhancedKey)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("fetch enhanced region: %w", err)
		}
		c.logger.Warn("enhanced region missing, using raw crop", "job_id", job.ID, "segmentation_id", seg.ID)
	}

	pageImage, ok := pages[seg.PageNumber]
	if !ok {
		return nil, fmt.Errorf("no page image for page %d", seg.PageNumber)
	}
	return CropRegion(pageImage, seg.Rect)
}

func (c *Compiler) cleanup(ctx context.Context, keys ...string) {
	if err := c.deps.Store.DeleteMany(ctx, keys); err != nil {
		c.logger.Warn("cleanup outputs", "error", err)
	}
}

// fail records the error on the job. Final output keys stay empty so a
// failed compilation never claims a render it did not produce.
func (c *Compiler) fail(ctx context.Context, job *conversion.Job, cause error) {
	c.logger.Error("compilation failed", "job_id", job.ID, "error", cause)
	job.Fail(cause.Error())
	if err := c.deps.Jobs.Update(ctx, job); err != nil {
		c.logger.Error("persist job failure", "job_id", job.ID, "error", err)
	}
}
