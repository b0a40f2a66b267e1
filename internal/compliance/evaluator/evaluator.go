// Package evaluator runs the NDPR rule checks against one organization's
// access data.
//
// Every check is a pure function of the organization's requests and consents
// at the scan instant (requestcontext.Now). Checks never fail on empty or
// well-formed input; only DataAccessPort errors surface, and they abort the
// whole evaluation.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"truconn/internal/compliance/metrics"
	"truconn/internal/compliance/models"
	"truconn/internal/compliance/ports"
	"truconn/internal/compliance/rules"
	"truconn/internal/compliance/scoring"
	id "truconn/pkg/domain"
	"truconn/pkg/requestcontext"
)

// check is one rule's detection function.
type check func(ctx context.Context, orgID id.OrganizationID, now time.Time) ([]models.Finding, error)

// Evaluator runs the catalog's checks against a DataAccessPort.
type Evaluator struct {
	data    ports.DataAccessPort
	catalog *rules.Catalog
	logger  *slog.Logger
	metrics *metrics.Metrics
	// maxParallel bounds concurrent checks; 1 runs them sequentially.
	maxParallel int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithCatalog overrides the process-wide catalog.
func WithCatalog(c *rules.Catalog) Option {
	return func(e *Evaluator) { e.catalog = c }
}

// WithMaxParallel bounds how many checks query the port at once.
func WithMaxParallel(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// New builds an Evaluator over the given port.
func New(data ports.DataAccessPort, opts ...Option) (*Evaluator, error) {
	if data == nil {
		return nil, errors.New("data access port is required")
	}
	e := &Evaluator{
		data:        data,
		catalog:     rules.Default(),
		maxParallel: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the catalog findings are resolved against.
func (e *Evaluator) Catalog() *rules.Catalog {
	return e.catalog
}

func (e *Evaluator) checkFor(ruleID rules.RuleID) check {
	switch ruleID {
	case rules.ConsentValidity:
		return e.CheckConsentValidity
	case rules.PurposeLimitation:
		return e.CheckPurposeLimitation
	case rules.DataMinimization:
		return e.CheckDataMinimization
	case rules.RetentionPolicy:
		return e.CheckRetentionPolicy
	case rules.AccessControl:
		return e.CheckAccessControl
	case rules.AuditTrail:
		return e.CheckAuditTrail
	case rules.RevocationHandling:
		return e.CheckRevocationHandling
	case rules.ExcessiveRequests:
		return e.CheckExcessiveRequests
	}
	return nil
}

// RunAllChecks executes every catalog rule and aggregates the findings.
// Checks run concurrently; the result lists findings in catalog order.
func (e *Evaluator) RunAllChecks(ctx context.Context, orgID id.OrganizationID) (*models.ScanResult, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	catalog := e.catalog.Rules()
	perRule := make([][]models.Finding, len(catalog))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for i, rule := range catalog {
		fn := e.checkFor(rule.ID)
		if fn == nil {
			return nil, fmt.Errorf("no check registered for rule %s", rule.ID)
		}
		g.Go(func() error {
			checkStart := time.Now()
			findings, err := fn(gctx, orgID, now)
			e.metrics.ObserveCheckDuration(string(rule.ID), time.Since(checkStart))
			if err != nil {
				return fmt.Errorf("check %s: %w", rule.ID, err)
			}
			perRule[i] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "rule evaluation failed",
				"organization_id", orgID.String(),
				"error", err,
			)
		}
		return nil, err
	}

	result := &models.ScanResult{Violations: []models.Finding{}}
	severities := make([]rules.Severity, 0)
	for _, findings := range perRule {
		for _, f := range findings {
			sev := e.catalog.MustLookup(f.RuleID).Severity
			severities = append(severities, sev)
			switch sev {
			case rules.SeverityCritical:
				result.CriticalCount++
			case rules.SeverityHigh:
				result.HighCount++
			case rules.SeverityMedium:
				result.MediumCount++
			case rules.SeverityLow:
				result.LowCount++
			}
			e.metrics.IncFinding(string(f.RuleID))
			result.Violations = append(result.Violations, f)
		}
	}
	result.TotalViolations = len(result.Violations)
	result.RiskScore = scoring.Score(severities)

	if e.logger != nil {
		e.logger.DebugContext(ctx, "rule evaluation complete",
			"organization_id", orgID.String(),
			"total_violations", result.TotalViolations,
			"risk_score", result.RiskScore,
			"duration", time.Since(start),
		)
	}
	return result, nil
}
