package main

import (
	"context"
	"database/sql"
	"time"

	complianceservice "truconn/internal/compliance/service"
	id "truconn/pkg/domain"
	dErrors "truconn/pkg/domain-errors"
	txcontext "truconn/pkg/platform/tx"
)

type compliancePostgresTx struct {
	db      *sql.DB
	store   complianceservice.Store
	timeout time.Duration
}

func newCompliancePostgresTx(db *sql.DB, store complianceservice.Store, timeout time.Duration) *compliancePostgresTx {
	return &compliancePostgresTx{db: db, store: store, timeout: timeout}
}

// RunInTx holds a transaction-scoped advisory lock on the organization so
// concurrent scans of the same organization serialize their reconcile phase.
func (t *compliancePostgresTx) RunInTx(ctx context.Context, orgID id.OrganizationID, fn func(ctx context.Context, store complianceservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = complianceservice.DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, orgID.String()); err != nil {
		return err
	}

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
