// Package outbox forwards committed outbox rows to Kafka.
//
// Rows are fetched with FOR UPDATE SKIP LOCKED inside a transaction, produced
// synchronously, and stamped published in the same transaction. A produce
// failure rolls the batch back so it is retried on the next tick; consumers
// must tolerate the at-least-once delivery this implies.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"truconn/pkg/platform/audit/store/postgres"
)

const defaultBatchSize = 100

// Producer is the subset of *kgo.Client the relay uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store is the outbox table.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchPending(ctx context.Context, limit int) ([]postgres.Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Relay moves outbox rows onto a Kafka topic.
type Relay struct {
	store     Store
	producer  Producer
	topic     string
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures a Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(store Store, producer Producer, topic string, opts ...Option) (*Relay, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	r := &Relay{
		store:     store,
		producer:  producer,
		topic:     topic,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RelayBatch forwards one batch and returns how many entries were published.
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	published := 0
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		entries, err := r.store.FetchPending(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, len(entries))
		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			records[i] = &kgo.Record{
				Topic: r.topic,
				// Keyed by organization so one org's events stay ordered.
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
					{Key: "outbox_id", Value: []byte(e.ID.String())},
				},
				Timestamp: e.CreatedAt,
			}
			ids[i] = e.ID
		}

		if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			r.metrics.IncFailures()
			return fmt.Errorf("produce outbox batch: %w", err)
		}
		if err := r.store.MarkPublished(ctx, ids, time.Now()); err != nil {
			return err
		}
		published = len(entries)
		return nil
	})
	if err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "outbox relay failed", "topic", r.topic, "error", err)
		}
		return 0, err
	}
	r.metrics.AddPublished(published)
	return published, nil
}
