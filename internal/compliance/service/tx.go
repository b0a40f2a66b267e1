package service

import (
	"context"
	"sync"
	"time"

	id "truconn/pkg/domain"
	dErrors "truconn/pkg/domain-errors"
)

// ComplianceStoreTx provides the write boundary for one organization's scan.
// Implementations serialize writers per organization: a Postgres transaction
// holding an advisory lock, or in memory a sharded mutex. fn receives a
// context that carries the transaction for collaborators such as the outbox.
type ComplianceStoreTx interface {
	RunInTx(ctx context.Context, orgID id.OrganizationID, fn func(ctx context.Context, store Store) error) error
}

// Checkpointer is implemented by in-memory stores that can undo writes made
// to one organization since the checkpoint.
type Checkpointer interface {
	Checkpoint(orgID id.OrganizationID) (restore func())
}

const numComplianceShards = 128

// DefaultTxTimeout bounds a scan's write phase when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

type shardedComplianceTx struct {
	shards  [numComplianceShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewInMemoryTx serializes writers per organization over a shared store.
func NewInMemoryTx(store Store, timeout time.Duration) ComplianceStoreTx {
	return &shardedComplianceTx{store: store, timeout: timeout}
}

func (t *shardedComplianceTx) RunInTx(ctx context.Context, orgID id.OrganizationID, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := hashOrganization(orgID.String()) % numComplianceShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	var restore func()
	if cp, ok := t.store.(Checkpointer); ok {
		restore = cp.Checkpoint(orgID)
	}
	if err := fn(ctx, t.store); err != nil {
		if restore != nil {
			restore()
		}
		return err
	}
	return nil
}

// hashOrganization is FNV-1a.
func hashOrganization(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
