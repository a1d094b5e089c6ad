package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Local is an in-process dispatcher: a buffered channel drained by a fixed
// pool of worker goroutines. One process, one queue; good enough for the
// single-writer semantics the pipeline assumes.
type Local struct {
	handler Handler
	logger  *slog.Logger
	tasks   chan Task
	workers int
	wg      sync.WaitGroup
}

// LocalConfig configures a Local dispatcher.
type LocalConfig struct {
	Handler   Handler
	Workers   int // worker goroutines (default 2)
	QueueSize int // buffered task capacity (default 100)
	Logger    *slog.Logger
}

// NewLocal creates a local dispatcher. Call Start before Enqueue.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		handler: cfg.Handler,
		logger:  logger.With("component", "queue"),
		tasks:   make(chan Task, queueSize),
		workers: workers,
	}, nil
}

// Start launches the worker goroutines. They drain the queue until ctx is
// cancelled. Start returns immediately.
func (l *Local) Start(ctx context.Context) {
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go l.run(ctx, i)
	}
	l.logger.Info("queue workers started", "workers", l.workers)
}

// Wait blocks until all workers have stopped.
func (l *Local) Wait() {
	l.wg.Wait()
}

func (l *Local) run(ctx context.Context, id int) {
	defer l.wg.Done()
	log := l.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			log.Info("queue worker stopping")
			return
		case task := <-l.tasks:
			l.execute(ctx, task, log)
		}
	}
}

// execute runs the handler with a panic guard. A worker crash must never
// take down the queue; the job's status carries the failure.
func (l *Local) execute(ctx context.Context, task Task, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task handler panicked", "job_id", task.JobID, "stage", task.Stage, "panic", r)
		}
	}()
	log.Debug("executing task", "job_id", task.JobID, "stage", task.Stage)
	l.handler(ctx, task)
}

// Enqueue adds a task. Returns ErrQueueFull when the buffer is exhausted.
func (l *Local) Enqueue(_ context.Context, task Task) error {
	select {
	case l.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s for job %s", ErrQueueFull, task.Stage, task.JobID)
	}
}
