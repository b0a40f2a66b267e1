package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "truconn/pkg/platform/audit"
	"truconn/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("outbox unavailable")
}

func TestEmit(t *testing.T) {
	ctx := context.Background()

	t.Run("persists event with defaults filled", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		metrics := NewMetrics(prometheus.NewRegistry())
		pub := New(store, WithMetrics(metrics))

		err := pub.Emit(ctx, audit.Event{Type: audit.EventAuditRecorded, OrganizationID: "org-1", RuleID: "AUDIT_TRAIL"})
		require.NoError(t, err)

		events, err := store.ListByOrganization(ctx, "org-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.NotZero(t, events[0].ID)
		assert.False(t, events[0].Timestamp.IsZero())
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsEmitted.WithLabelValues("audit_recorded")))
	})

	t.Run("rejects events without organization or type", func(t *testing.T) {
		pub := New(memory.NewInMemoryStore())
		assert.Error(t, pub.Emit(ctx, audit.Event{Type: audit.EventAuditRecorded}))
		assert.Error(t, pub.Emit(ctx, audit.Event{OrganizationID: "org-1"}))
	})

	t.Run("store failure fails closed", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())
		pub := New(failingStore{}, WithMetrics(metrics))

		err := pub.Emit(ctx, audit.Event{Type: audit.EventScanCompleted, OrganizationID: "org-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outbox unavailable")
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PersistFailures))
	})
}
