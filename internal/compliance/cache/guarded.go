package cache

import (
	"context"
	"errors"
	"log/slog"

	"truconn/internal/compliance/models"
	id "truconn/pkg/domain"
	"truconn/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the breaker short-circuits cache calls.
var ErrCircuitOpen = errors.New("report cache circuit open")

// Backend is the cache the breaker protects.
type Backend interface {
	Get(ctx context.Context, orgID id.OrganizationID, windowDays int) (*models.Report, error)
	Generation(ctx context.Context, orgID id.OrganizationID) (int64, error)
	Set(ctx context.Context, orgID id.OrganizationID, windowDays int, gen int64, report *models.Report) error
	Invalidate(ctx context.Context, orgID id.OrganizationID) error
}

// Guarded stops calling an unhealthy cache backend so Latest falls back to
// the store without paying a network timeout on every request.
type Guarded struct {
	backend Backend
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(backend Backend, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if breaker == nil {
		breaker = circuit.New("report-cache")
	}
	return &Guarded{backend: backend, breaker: breaker, logger: logger}
}

func (g *Guarded) Get(ctx context.Context, orgID id.OrganizationID, windowDays int) (*models.Report, error) {
	if !g.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	report, err := g.backend.Get(ctx, orgID, windowDays)
	g.record(ctx, err)
	return report, err
}

func (g *Guarded) Generation(ctx context.Context, orgID id.OrganizationID) (int64, error) {
	if !g.breaker.Allow() {
		return 0, ErrCircuitOpen
	}
	gen, err := g.backend.Generation(ctx, orgID)
	g.record(ctx, err)
	return gen, err
}

func (g *Guarded) Set(ctx context.Context, orgID id.OrganizationID, windowDays int, gen int64, report *models.Report) error {
	if !g.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := g.backend.Set(ctx, orgID, windowDays, gen, report)
	g.record(ctx, err)
	return err
}

// Invalidate always reaches the backend. A skipped invalidation would leave a
// stale report visible until its TTL.
func (g *Guarded) Invalidate(ctx context.Context, orgID id.OrganizationID) error {
	err := g.backend.Invalidate(ctx, orgID)
	g.record(ctx, err)
	return err
}

func (g *Guarded) record(ctx context.Context, err error) {
	var change circuit.StateChange
	if err != nil {
		_, change = g.breaker.RecordFailure()
	} else {
		_, change = g.breaker.RecordSuccess()
	}
	if g.logger == nil {
		return
	}
	switch {
	case change.Opened:
		g.logger.WarnContext(ctx, "report cache circuit opened", "breaker", g.breaker.Name(), "error", err)
	case change.Closed:
		g.logger.InfoContext(ctx, "report cache circuit closed", "breaker", g.breaker.Name())
	}
}
