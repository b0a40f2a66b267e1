package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"truconn/pkg/platform/audit/store/postgres"
)

type fakeStore struct {
	pending   []postgres.Entry
	published []uuid.UUID
	committed bool
	fetchErr  error
	lastLimit int
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.committed = false
	staged := f.published
	if err := fn(ctx); err != nil {
		f.published = staged
		return err
	}
	f.committed = true
	return nil
}

func (f *fakeStore) FetchPending(_ context.Context, limit int) ([]postgres.Entry, error) {
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	f.published = append(f.published, ids...)
	return nil
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func entry(org string) postgres.Entry {
	return postgres.Entry{
		ID:          uuid.New(),
		AggregateID: org,
		EventType:   "audit_recorded",
		Payload:     []byte(`{}`),
		CreatedAt:   time.Now(),
	}
}

func TestNewRelay(t *testing.T) {
	_, err := NewRelay(nil, &fakeProducer{}, "t")
	assert.Error(t, err)
	_, err = NewRelay(&fakeStore{}, nil, "t")
	assert.Error(t, err)
	_, err = NewRelay(&fakeStore{}, &fakeProducer{}, "")
	assert.Error(t, err)
}

func TestRelayBatch(t *testing.T) {
	t.Run("publishes pending entries keyed by organization", func(t *testing.T) {
		store := &fakeStore{pending: []postgres.Entry{entry("org-a"), entry("org-b")}}
		producer := &fakeProducer{}
		metrics := NewMetrics(prometheus.NewRegistry())
		relay, err := NewRelay(store, producer, "compliance.events", WithMetrics(metrics))
		require.NoError(t, err)

		n, err := relay.RelayBatch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.True(t, store.committed)
		assert.Len(t, store.published, 2)
		require.Len(t, producer.records, 2)
		assert.Equal(t, "compliance.events", producer.records[0].Topic)
		assert.Equal(t, []byte("org-a"), producer.records[0].Key)
		assert.Equal(t, "event_type", producer.records[0].Headers[0].Key)
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Published))
	})

	t.Run("empty outbox is a no-op", func(t *testing.T) {
		store := &fakeStore{}
		producer := &fakeProducer{}
		relay, err := NewRelay(store, producer, "compliance.events", WithBatchSize(10))
		require.NoError(t, err)

		n, err := relay.RelayBatch(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 10, store.lastLimit)
		assert.Empty(t, producer.records)
	})

	t.Run("produce failure leaves entries unpublished", func(t *testing.T) {
		store := &fakeStore{pending: []postgres.Entry{entry("org-a")}}
		producer := &fakeProducer{err: errors.New("broker unavailable")}
		metrics := NewMetrics(prometheus.NewRegistry())
		relay, err := NewRelay(store, producer, "compliance.events", WithMetrics(metrics))
		require.NoError(t, err)

		n, err := relay.RelayBatch(context.Background())
		require.Error(t, err)
		assert.Zero(t, n)
		assert.False(t, store.committed)
		assert.Empty(t, store.published)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failures))
	})

	t.Run("fetch failure is returned", func(t *testing.T) {
		store := &fakeStore{fetchErr: errors.New("connection reset")}
		relay, err := NewRelay(store, &fakeProducer{}, "compliance.events")
		require.NoError(t, err)

		_, err = relay.RelayBatch(context.Background())
		assert.ErrorContains(t, err, "connection reset")
	})
}
