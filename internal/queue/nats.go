package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const natsQueueGroup = "inkwell-workers"

// NATS is a dispatcher backed by a NATS subject per stage, for deployments
// where the API process and the pipeline workers are separate. Payload is
// the job id; the subject carries the stage.
type NATS struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NATSConfig configures a NATS dispatcher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // default "inkwell.jobs"
	ConnectWait   time.Duration
	Logger        *slog.Logger
}

// NewNATS connects to the NATS server.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "inkwell.jobs"
	}
	connectWait := cfg.ConnectWait
	if connectWait <= 0 {
		connectWait = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats-queue")

	conn, err := nats.Connect(
		cfg.URL,
		nats.Name("inkwell"),
		nats.Timeout(connectWait),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATS{conn: conn, prefix: prefix, logger: log}, nil
}

// Close drains the connection.
func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *NATS) subject(stage Stage) string {
	return n.prefix + "." + string(stage)
}

// Enqueue publishes the task to the stage's subject.
func (n *NATS) Enqueue(_ context.Context, task Task) error {
	if err := n.conn.Publish(n.subject(task.Stage), []byte(task.JobID.String())); err != nil {
		return fmt.Errorf("failed to publish %s task for job %s: %w", task.Stage, task.JobID, err)
	}
	return nil
}

// Subscribe binds the handler to both stage subjects in a queue group and
// blocks until ctx is cancelled. Malformed payloads are logged and skipped.
func (n *NATS) Subscribe(ctx context.Context, handler Handler) error {
	for _, stage := range []Stage{StageConvert, StageCompile} {
		stage := stage
		_, err := n.conn.QueueSubscribe(n.subject(stage), natsQueueGroup, func(msg *nats.Msg) {
			jobID, err := uuid.Parse(string(msg.Data))
			if err != nil {
				n.logger.Warn("dropping task with malformed job id", "payload", string(msg.Data), "stage", stage)
				return
			}
			handler(ctx, Task{JobID: jobID, Stage: stage})
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", n.subject(stage), err)
		}
	}
	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush nats subscriptions: %w", err)
	}

	<-ctx.Done()
	return ctx.Err()
}
