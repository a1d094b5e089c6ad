// Package service exposes the operations an API or UI layer drives the
// pipeline with: job creation, status, placeholder tasks, segmentation
// declaration, compilation trigger, document editing, and region
// enhancement. It owns the rules for what is allowed in each job status;
// the pipeline workers own what happens once a stage runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/blob"
	"github.com/inkwell-scan/inkwell/internal/conversion"
	"github.com/inkwell-scan/inkwell/internal/enhance"
	"github.com/inkwell-scan/inkwell/internal/pipeline"
	"github.com/inkwell-scan/inkwell/internal/queue"
)

// ErrInvalidState is returned when an operation is not allowed in the job's
// current status.
var ErrInvalidState = errors.New("operation not allowed in current job status")

// JobService is the exposed surface of the conversion system.
type JobService struct {
	store      blob.Store
	jobs       conversion.JobRepository
	pages      conversion.PageRepository
	segs       conversion.SegmentationRepository
	dispatcher queue.Dispatcher
	enhancer   enhance.Enhancer
	logger     *slog.Logger
}

// Config collects JobService dependencies. Enhancer and Logger are
// optional; a nil Enhancer disables region enhancement.
type Config struct {
	Store         blob.Store
	Jobs          conversion.JobRepository
	Pages         conversion.PageRepository
	Segmentations conversion.SegmentationRepository
	Dispatcher    queue.Dispatcher
	Enhancer      enhance.Enhancer
	Logger        *slog.Logger
}

// New creates a JobService.
func New(cfg Config) *JobService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &JobService{
		store:      cfg.Store,
		jobs:       cfg.Jobs,
		pages:      cfg.Pages,
		segs:       cfg.Segmentations,
		dispatcher: cfg.Dispatcher,
		enhancer:   cfg.Enhancer,
		logger:     cfg.Logger,
	}
}

// CreateJob stores an uploaded source document, records a pending job for
// it, and enqueues Stage 1. The returned job is in Pending status; all
// further progress is observable through Status.
func (s *JobService) CreateJob(ctx context.Context, filename string, source []byte, modelID string) (*conversion.Job, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("source document is empty")
	}
	filename = filepath.Base(filename)
	if filename == "." || filename == "/" || filename == "" {
		return nil, fmt.Errorf("invalid source filename")
	}

	job := conversion.NewJob(filename, "", modelID)
	job.SourceKey = fmt.Sprintf("sources/%s/%s", job.ID, filename)

	if err := s.store.Put(ctx, job.SourceKey, source, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("store source document: %w", err)
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.dispatcher.Enqueue(ctx, queue.Task{JobID: job.ID, Stage: queue.StageConvert}); err != nil {
		return nil, fmt.Errorf("enqueue conversion: %w", err)
	}

	s.logger.Info("job created", "job_id", job.ID, "source", filename, "model", modelID)
	return job, nil
}

// Job returns the full job record.
func (s *JobService) Job(ctx context.Context, id uuid.UUID) (*conversion.Job, error) {
	return s.jobs.Get(ctx, id)
}

// Status reports a job's current status and, when Failed, its error message.
func (s *JobService) Status(ctx context.Context, id uuid.UUID) (conversion.Status, string, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	return job.Status, job.ErrorMessage, nil
}

// PlaceholderTask is one pending segmentation task for the UI.
type PlaceholderTask struct {
	Placeholder string
	Description string
}

// PlaceholderTasks lists the job's placeholder tasks in marker order:
// STRUCTURE markers first, then DIAGRAM, each numerically by index. A nil
// result means Stage 1 has not determined them yet.
func (s *JobService) PlaceholderTasks(ctx context.Context, id uuid.UUID) ([]PlaceholderTask, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.PlaceholderTasks == nil {
		return nil, nil
	}

	tasks := make([]PlaceholderTask, 0, len(job.PlaceholderTasks))
	for name, desc := range job.PlaceholderTasks {
		tasks = append(tasks, PlaceholderTask{Placeholder: name, Description: desc})
	}
	sort.Slice(tasks, func(i, j int) bool {
		return markerLess(tasks[i].Placeholder, tasks[j].Placeholder)
	})
	return tasks, nil
}

// markerLess orders placeholder names STRUCTURE before DIAGRAM and
// numerically within each kind, so STRUCTURE-2 sorts before STRUCTURE-10.
func markerLess(a, b string) bool {
	ka, na := splitMarker(a)
	kb, nb := splitMarker(b)
	if ka != kb {
		return ka < kb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitMarker(name string) (kind int, index int) {
	prefix, num, ok := strings.Cut(name, "-")
	if !ok {
		return 2, 0
	}
	switch prefix {
	case "STRUCTURE":
		kind = 0
	case "DIAGRAM":
		kind = 1
	default:
		kind = 2
	}
	index, _ = strconv.Atoi(num)
	return kind, index
}

// Pages lists the job's rasterized page artifacts in page order.
func (s *JobService) Pages(ctx context.Context, id uuid.UUID) ([]conversion.PageArtifact, error) {
	return s.pages.ListPages(ctx, id)
}

// ReplaceSegmentations validates and atomically replaces the job's declared
// regions. The job must be awaiting segmentation or further along; a job
// still converting has no pages to segment against.
func (s *JobService) ReplaceSegmentations(ctx context.Context, jobID uuid.UUID, segs []conversion.Segmentation) ([]conversion.Segmentation, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case conversion.StatusAwaitingSegmentation, conversion.StatusSegmentationComplete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, job.Status)
	}

	for i := range segs {
		if err := segs[i].Validate(); err != nil {
			return nil, fmt.Errorf("segmentation %d: %w", i, err)
		}
	}
	return s.segs.Replace(ctx, jobID, segs)
}

// TriggerCompile moves the job to CompilationPending and enqueues Stage 2.
// Valid only from AwaitingSegmentation or SegmentationComplete.
func (s *JobService) TriggerCompile(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(conversion.StatusCompilationPending); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidState, job.Status)
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist job status: %w", err)
	}
	if err := s.dispatcher.Enqueue(ctx, queue.Task{JobID: jobID, Stage: queue.StageCompile}); err != nil {
		return fmt.Errorf("enqueue compilation: %w", err)
	}
	s.logger.Info("compilation triggered", "job_id", jobID)
	return nil
}

// Document returns the job's current document text.
func (s *JobService) Document(ctx context.Context, jobID uuid.UUID) (string, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.InitialDocKey == "" {
		return "", fmt.Errorf("%w: job has no document yet", ErrInvalidState)
	}
	data, err := s.store.Get(ctx, job.InitialDocKey)
	if err != nil {
		return "", fmt.Errorf("fetch document: %w", err)
	}
	return string(data), nil
}

// UpdateDocument replaces the job's document text. Editing a compiled job
// invalidates its render: the final artifact keys are cleared, their blobs
// deleted best-effort, and the job drops back to SegmentationComplete so
// the user can recompile.
func (s *JobService) UpdateDocument(ctx context.Context, jobID uuid.UUID, text string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.InitialDocKey == "" {
		return fmt.Errorf("%w: job has no document yet", ErrInvalidState)
	}

	if err := s.store.Put(ctx, job.InitialDocKey, []byte(text), "text/x-tex"); err != nil {
		return fmt.Errorf("store document: %w", err)
	}

	if job.Status == conversion.StatusCompilationComplete {
		stale := []string{}
		if job.FinalDocKey != "" {
			stale = append(stale, job.FinalDocKey)
		}
		if job.FinalRenderKey != "" {
			stale = append(stale, job.FinalRenderKey)
		}
		if err := s.store.DeleteMany(ctx, stale); err != nil {
			s.logger.Warn("delete stale final artifacts", "job_id", jobID, "error", err)
		}
		job.FinalDocKey = ""
		job.FinalRenderKey = ""
		job.CompletedAt = nil
		if err := job.Transition(conversion.StatusSegmentationComplete); err != nil {
			return err
		}
		s.logger.Info("document edit invalidated render", "job_id", jobID)
	} else {
		job.UpdatedAt = time.Now().UTC()
	}
	return s.jobs.Update(ctx, job)
}

// Render returns the final typeset output. Only a CompilationComplete job
// has one.
func (s *JobService) Render(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.FinalRenderKey == "" {
		return nil, fmt.Errorf("%w: job has no render", ErrInvalidState)
	}
	return s.store.Get(ctx, job.FinalRenderKey)
}

// EnhanceRegion crops a declared segmentation out of its page, asks the
// image model to redraw it using the placeholder description, stores the
// result, and marks the segmentation to use it.
func (s *JobService) EnhanceRegion(ctx context.Context, jobID uuid.UUID, segID int64) (*conversion.Segmentation, error) {
	if s.enhancer == nil {
		return nil, fmt.Errorf("region enhancement is not configured")
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	seg, err := s.segs.Get(ctx, jobID, segID)
	if err != nil {
		return nil, err
	}

	pageImage, err := s.pageImage(ctx, jobID, seg.PageNumber)
	if err != nil {
		return nil, err
	}
	crop, err := pipeline.CropRegion(pageImage, seg.Rect)
	if err != nil {
		return nil, fmt.Errorf("crop region: %w", err)
	}

	enhanced, err := s.enhancer.Enhance(ctx, crop, job.PlaceholderTasks[seg.Label])
	if err != nil {
		return nil, fmt.Errorf("enhance region: %w", err)
	}

	key := pipeline.EnhancedRegionKey(jobID, segID)
	if err := s.store.Put(ctx, key, enhanced, "image/png"); err != nil {
		return nil, fmt.Errorf("store enhanced region: %w", err)
	}
	if err := s.segs.SetEnhanced(ctx, segID, key, true); err != nil {
		return nil, fmt.Errorf("persist enhanced region: %w", err)
	}

	seg.EnhancedKey = key
	seg.UseEnhanced = true
	s.logger.Info("region enhanced", "job_id", jobID, "segmentation_id", segID, "label", seg.Label)
	return seg, nil
}

func (s *JobService) pageImage(ctx context.Context, jobID uuid.UUID, pageNumber int) ([]byte, error) {
	artifacts, err := s.pages.ListPages(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list page artifacts: %w", err)
	}
	for _, a := range artifacts {
		if a.PageNumber == pageNumber {
			return s.store.Get(ctx, a.Key)
		}
	}
	return nil, fmt.Errorf("no page artifact for page %d", pageNumber)
}
