package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "haven/pkg/platform/audit"
)

// Outbox hands out unrelayed entries under a lock.
type Outbox interface {
	Relay(ctx context.Context, limit int, publish audit.PublishFunc) (int, error)
}

// Publisher delivers outbox entries to the audit topic.
type Publisher interface {
	PublishOutbox(ctx context.Context, entries []audit.OutboxEntry) ([]uuid.UUID, error)
}

// Worker relays outbox rows to the bus on an interval until ctx is done.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(outbox Outbox, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		interval:  2 * time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Relay errors are logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.RelayOnce(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err, "relayed", n)
			return
		}
		if n < w.batchSize {
			return
		}
	}
}

// RelayOnce relays at most one batch and returns how many entries were
// delivered.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	return w.outbox.Relay(ctx, w.batchSize, w.publisher.PublishOutbox)
}
