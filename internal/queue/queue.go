// Package queue dispatches pipeline stages as background tasks. The API
// layer enqueues (job id, stage) pairs; workers execute them asynchronously
// and report nothing back but the job's own status field.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Stage names a pipeline stage a task should run.
type Stage string

const (
	StageConvert Stage = "convert" // Stage 1: source -> initial document
	StageCompile Stage = "compile" // Stage 2: segmentations -> final render
)

// ErrQueueFull is returned by Enqueue when the task queue cannot accept
// more work.
var ErrQueueFull = errors.New("task queue full")

// Task identifies one unit of pipeline work.
type Task struct {
	JobID uuid.UUID
	Stage Stage
}

// Handler executes a task. Handlers must not leak errors or panics to the
// queue: any failure is recorded on the job itself.
type Handler func(ctx context.Context, task Task)

// Dispatcher accepts tasks for asynchronous execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, task Task) error
}
