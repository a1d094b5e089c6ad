// Package pipeline implements the two conversion stages: the conversion
// worker that turns a source document into an initial typeset document with
// placeholders, and the compilation worker that substitutes segmented
// regions and produces the final render.
//
// Workers never let an error escape to the task queue: every failure is
// converted into the job's Failed status plus a truncated message, which is
// the only state visible outside the pipeline.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/inkwell-scan/inkwell/internal/blob"
	"github.com/inkwell-scan/inkwell/internal/conversion"
	"github.com/inkwell-scan/inkwell/internal/metrics"
	"github.com/inkwell-scan/inkwell/internal/queue"
	"github.com/inkwell-scan/inkwell/internal/raster"
	"github.com/inkwell-scan/inkwell/internal/transcribe"
	"github.com/inkwell-scan/inkwell/internal/typeset"
)

// Deps holds the constructed dependencies both workers run against.
// Everything is injected; nothing here is process-global.
type Deps struct {
	Store         blob.Store
	Jobs          conversion.JobRepository
	Pages         conversion.PageRepository
	Segmentations conversion.SegmentationRepository
	Rasterizer    raster.Rasterizer
	Transcriber   transcribe.Transcriber
	Typesetter    typeset.Typesetter
	Metrics       *metrics.Recorder
	Logger        *slog.Logger

	// Workers bounds concurrent page uploads (Stage 1) and page downloads
	// (Stage 2). Zero means 4.
	Workers int
}

func (d *Deps) normalize() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}
}

// Artifact key layout. Keys are deterministic per job so re-runs overwrite
// rather than accumulate.
func pageKey(jobID uuid.UUID, pageNumber int) string {
	return fmt.Sprintf("pages/%s/page_%d.png", jobID, pageNumber)
}

func initialDocKey(jobID uuid.UUID) string {
	return fmt.Sprintf("outputs/initial_tex/%s.tex", jobID)
}

func finalDocKey(jobID uuid.UUID) string {
	return fmt.Sprintf("outputs/final_tex/%s.tex", jobID)
}

func finalRenderKey(jobID uuid.UUID) string {
	return fmt.Sprintf("outputs/final_pdf/%s.pdf", jobID)
}

// EnhancedRegionKey is the store key for an AI-redrawn crop of a
// segmentation. Exported for the service layer that produces them.
func EnhancedRegionKey(jobID uuid.UUID, segID int64) string {
	return fmt.Sprintf("enhanced/%s/%d.png", jobID, segID)
}

// Handler returns a queue handler routing tasks to the two workers.
func Handler(converter *Converter, compiler *Compiler) queue.Handler {
	return func(ctx context.Context, task queue.Task) {
		switch task.Stage {
		case queue.StageConvert:
			converter.Run(ctx, task.JobID)
		case queue.StageCompile:
			compiler.Run(ctx, task.JobID)
		}
	}
}
