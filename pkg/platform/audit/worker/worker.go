package worker

import (
	"context"
	"log/slog"
	"time"
)

// Relayer forwards one batch of outbox entries.
type Relayer interface {
	RelayBatch(ctx context.Context) (int, error)
}

// Worker drives a Relayer on a fixed interval. A full batch is followed
// immediately by another so a backlog drains without waiting for the ticker.
type Worker struct {
	relay     Relayer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewWorker(relay Relayer, interval time.Duration, batchSize int, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{relay: relay, interval: interval, batchSize: batchSize, logger: logger}
}

// Run blocks until ctx is cancelled. Relay errors are logged and retried on
// the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.RelayBatch(ctx)
		if err != nil {
			if w.logger != nil {
				w.logger.WarnContext(ctx, "outbox relay tick failed", "error", err)
			}
			return
		}
		if w.batchSize <= 0 || n < w.batchSize {
			return
		}
	}
}
