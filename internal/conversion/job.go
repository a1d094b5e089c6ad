// Package conversion defines the domain model for document conversion jobs:
// the job record, its status state machine, rasterized page artifacts, and
// user-declared segmentations.
package conversion

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the single source of truth for what is currently valid about a job.
type Status string

const (
	StatusPending                 Status = "pending"
	StatusRendering               Status = "rendering"
	StatusProcessingTranscription Status = "processing_transcription"
	StatusAwaitingSegmentation    Status = "awaiting_segmentation"
	StatusSegmentationComplete    Status = "segmentation_complete"
	StatusCompilationPending      Status = "compilation_pending"
	StatusCompilationComplete     Status = "compilation_complete"
	StatusFailed                  Status = "failed"
)

// Terminal reports whether the status is an end state. Failed is terminal;
// CompilationComplete is terminal until the document is edited out-of-band.
func (s Status) Terminal() bool {
	return s == StatusCompilationComplete || s == StatusFailed
}

// validTransitions maps each status to the statuses reachable from it.
// Failed is reachable from every non-terminal state and is handled separately.
var validTransitions = map[Status][]Status{
	StatusPending:                 {StatusRendering},
	StatusRendering:               {StatusProcessingTranscription},
	StatusProcessingTranscription: {StatusAwaitingSegmentation, StatusSegmentationComplete},
	StatusAwaitingSegmentation:    {StatusCompilationPending},
	StatusSegmentationComplete:    {StatusCompilationPending},
	StatusCompilationPending:      {StatusCompilationComplete},
	// Editing the final document invalidates the render and reopens the job.
	StatusCompilationComplete: {StatusSegmentationComplete},
}

// CanTransition reports whether moving from s to next is a legal state change.
func (s Status) CanTransition(next Status) bool {
	if next == StatusFailed {
		return !s.Terminal()
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job represents one document conversion request and its accumulated state.
type Job struct {
	ID             uuid.UUID
	SourceFilename string
	SourceKey      string // store key of the uploaded document, immutable
	InitialDocKey  string // set by Stage 1
	FinalDocKey    string // set by Stage 2; non-empty only when CompilationComplete
	FinalRenderKey string // set by Stage 2; cleared when the document is edited
	ModelID        string // requested transcription model
	Status         Status
	ErrorMessage   string

	// PlaceholderTasks maps placeholder name to its description. nil means
	// Stage 1 has not determined them yet; an empty map means it ran and
	// found none.
	PlaceholderTasks map[string]string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewJob creates a pending job for an uploaded source document.
func NewJob(sourceFilename, sourceKey, modelID string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:             uuid.New(),
		SourceFilename: sourceFilename,
		SourceKey:      sourceKey,
		ModelID:        modelID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Transition moves the job to next, enforcing the state machine.
func (j *Job) Transition(next Status) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition %s -> %s for job %s", j.Status, next, j.ID)
	}
	j.Status = next
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail marks the job failed with a truncated error message. It is valid from
// any non-terminal state; callers at the worker boundary use it to convert
// stage errors into the only state visible outside the pipeline.
func (j *Job) Fail(msg string) {
	const maxErrorLen = 500
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	j.Status = StatusFailed
	j.ErrorMessage = msg
	j.UpdatedAt = time.Now().UTC()
}

// Complete marks the job compilation-complete. completedAt is set on the
// first successful completion only; a redelivered compile task must not
// move it.
func (j *Job) Complete(finalDocKey, finalRenderKey string) {
	now := time.Now().UTC()
	j.Status = StatusCompilationComplete
	j.FinalDocKey = finalDocKey
	j.FinalRenderKey = finalRenderKey
	j.ErrorMessage = ""
	if j.CompletedAt == nil {
		j.CompletedAt = &now
	}
	j.UpdatedAt = now
}

// ResetOutputs clears artifacts produced by earlier attempts. Stage 1 calls
// this when it starts so a retried job never points at stale outputs.
func (j *Job) ResetOutputs() {
	j.InitialDocKey = ""
	j.FinalDocKey = ""
	j.FinalRenderKey = ""
	j.ErrorMessage = ""
	j.CompletedAt = nil
	j.UpdatedAt = time.Now().UTC()
}
