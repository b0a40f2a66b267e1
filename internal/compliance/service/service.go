// Package service orchestrates compliance scans: evaluate the rule catalog,
// score the findings, and materialize them as deduplicated audit records.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"truconn/internal/compliance/metrics"
	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	"truconn/internal/compliance/scoring"
	"truconn/internal/organization"
	id "truconn/pkg/domain"
	dErrors "truconn/pkg/domain-errors"
	audit "truconn/pkg/platform/audit"
	"truconn/pkg/platform/sentinel"
	"truconn/pkg/requestcontext"
)

const (
	// DefaultDedupWindow is the span within which a rule violation is
	// recorded at most once per organization.
	DefaultDedupWindow = 30 * 24 * time.Hour
	DefaultWindowDays  = 30
	latestListLimit    = 10
)

// Service runs scans and serves the compliance read models.
type Service struct {
	evaluator   Evaluator
	tx          ComplianceStoreTx
	store       Store
	orgs        OrganizationDirectory
	publisher   EventPublisher
	cache       ReportCache
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	dedupWindow time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher emits compliance events inside the scan transaction.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithReportCache caches Latest reports until the next write.
func WithReportCache(c ReportCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithDedupWindow overrides the 30-day dedup window.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.dedupWindow = d
		}
	}
}

func New(evaluator Evaluator, tx ComplianceStoreTx, store Store, orgs OrganizationDirectory, opts ...Option) (*Service, error) {
	if evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if tx == nil {
		return nil, errors.New("compliance tx is required")
	}
	if store == nil {
		return nil, errors.New("compliance store is required")
	}
	if orgs == nil {
		return nil, errors.New("organization directory is required")
	}
	s := &Service{
		evaluator:   evaluator,
		tx:          tx,
		store:       store,
		orgs:        orgs,
		tracer:      otel.Tracer("truconn/compliance"),
		dedupWindow: DefaultDedupWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CallerOrganization resolves the organization the authenticated caller owns.
func (s *Service) CallerOrganization(ctx context.Context) (*organization.Organization, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	org, err := s.orgs.FindByOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "caller is not an organization")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve organization")
	}
	return org, nil
}

// Run scans one organization and durably records new findings. The write
// phase is atomic: on any failure nothing from this scan is committed.
func (s *Service) Run(ctx context.Context, orgID id.OrganizationID) (*models.Report, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)

	ctx, span := s.tracer.Start(ctx, "compliance.scan",
		trace.WithAttributes(attribute.String("organization_id", orgID.String())))
	defer span.End()

	report, err := s.run(ctx, orgID, now)
	s.metrics.ObserveScan(err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "compliance scan failed",
				"organization_id", orgID.String(),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("risk_score", report.RiskScore),
		attribute.Int("total_violations", report.TotalViolations),
	)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "compliance scan completed",
			"organization_id", orgID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"risk_score", report.RiskScore,
			"total_violations", report.TotalViolations,
			"audits", len(report.Audits),
		)
	}
	return report, nil
}

func (s *Service) run(ctx context.Context, orgID id.OrganizationID, now time.Time) (*models.Report, error) {
	evalCtx, evalSpan := s.tracer.Start(ctx, "compliance.evaluate")
	result, err := s.evaluator.RunAllChecks(evalCtx, orgID)
	evalSpan.End()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compliance scan failed")
	}
	s.metrics.ObserveRiskScore(result.RiskScore)

	var reconciled *reconcileResult
	txCtx, txSpan := s.tracer.Start(ctx, "compliance.reconcile")
	err = s.tx.RunInTx(txCtx, orgID, func(ctx context.Context, store Store) error {
		var rErr error
		reconciled, rErr = s.reconcile(ctx, store, orgID, result.Violations, now)
		if rErr != nil {
			return rErr
		}
		score := result.RiskScore
		return s.emit(ctx, audit.Event{
			Type:           audit.EventScanCompleted,
			Timestamp:      now,
			OrganizationID: orgID.String(),
			Decision:       scoring.Level(score),
			RiskScore:      &score,
		})
	})
	txSpan.End()
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compliance scan failed")
	}

	s.invalidate(ctx, orgID)
	return &models.Report{
		RiskScore:       result.RiskScore,
		RiskLevel:       scoring.Level(result.RiskScore),
		TotalViolations: result.TotalViolations,
		CriticalCount:   result.CriticalCount,
		HighCount:       result.HighCount,
		MediumCount:     result.MediumCount,
		Audits:          reconciled.audits,
		Violations:      reconciled.violations,
	}, nil
}

// Latest summarizes the organization's open audits within the window without
// re-running checks. The score counts PENDING audits only; the audit and
// violation lists cover every status, newest first, capped at 10.
func (s *Service) Latest(ctx context.Context, orgID id.OrganizationID, windowDays int) (*models.Report, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	cacheable := false
	var gen int64
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, orgID, windowDays)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "report cache read failed", "organization_id", orgID.String(), "error", err)
		}
		if cached != nil {
			return cached, nil
		}
		// The generation must be read before the store so a write that
		// commits in between makes the Set below a no-op.
		gen, err = s.cache.Generation(ctx, orgID)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "report cache generation read failed", "organization_id", orgID.String(), "error", err)
		}
		cacheable = err == nil
	}

	since := requestcontext.Now(ctx).AddDate(0, 0, -windowDays)
	pending, err := s.store.ListAudits(ctx, orgID, models.AuditFilter{Since: since, Status: models.AuditPending})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance summary")
	}
	recentAudits, err := s.store.ListAudits(ctx, orgID, models.AuditFilter{Since: since, Limit: latestListLimit})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance summary")
	}
	recentViolations, err := s.store.ListViolations(ctx, orgID, models.ViolationFilter{Since: since, Limit: latestListLimit})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance summary")
	}

	report := summarizePending(pending)
	report.Audits = nonNilAudits(recentAudits)
	report.Violations = nonNilViolations(recentViolations)

	if cacheable {
		if err := s.cache.Set(ctx, orgID, windowDays, gen, report); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "report cache write failed", "organization_id", orgID.String(), "error", err)
		}
	}
	return report, nil
}

func summarizePending(pending []models.Audit) *models.Report {
	report := &models.Report{TotalViolations: len(pending)}
	severities := make([]rules.Severity, 0, len(pending))
	for _, a := range pending {
		severities = append(severities, a.Severity)
		switch a.Severity {
		case rules.SeverityCritical:
			report.CriticalCount++
		case rules.SeverityHigh:
			report.HighCount++
		case rules.SeverityMedium:
			report.MediumCount++
		}
	}
	report.RiskScore = scoring.Score(severities)
	report.RiskLevel = scoring.Level(report.RiskScore)
	return report
}

// Reports returns the compliance overview for orgID, or for the caller's own
// organization when orgID is nil. Only the owner or an operator may read a
// named organization.
func (s *Service) Reports(ctx context.Context, orgID *id.OrganizationID) (*models.OrganizationReport, error) {
	var org *organization.Organization
	if orgID == nil {
		var err error
		if org, err = s.CallerOrganization(ctx); err != nil {
			return nil, err
		}
	} else {
		found, err := s.orgs.FindByID(ctx, *orgID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load organization")
		}
		if !requestcontext.IsOperator(ctx) && !found.IsOwnedBy(requestcontext.UserID(ctx)) {
			return nil, dErrors.New(dErrors.CodeForbidden, "permission denied")
		}
		org = found
	}

	since := requestcontext.Now(ctx).Add(-s.dedupWindow)
	audits, err := s.store.ListAudits(ctx, org.ID, models.AuditFilter{Since: since})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to retrieve compliance reports")
	}
	violations, err := s.store.ListViolations(ctx, org.ID, models.ViolationFilter{Since: since})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to retrieve compliance reports")
	}

	stats := models.Statistics{TotalAudits: len(audits)}
	for _, a := range audits {
		switch a.Status {
		case models.AuditPending:
			stats.PendingAudits++
		case models.AuditResolved:
			stats.ResolvedAudits++
		}
	}
	for _, v := range violations {
		if !v.Resolved {
			stats.UnresolvedViolations++
		}
	}

	return &models.OrganizationReport{
		Organization: models.OrganizationSummary{ID: org.ID, Name: org.Name},
		Statistics:   stats,
		Audits:       nonNilAudits(audits),
		Violations:   nonNilViolations(violations),
	}, nil
}

// GetAudit returns one of the organization's audits. Audits owned by another
// organization are reported as not found.
func (s *Service) GetAudit(ctx context.Context, orgID id.OrganizationID, auditID id.AuditID) (*models.Audit, error) {
	a, err := s.store.FindAuditByID(ctx, auditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to retrieve audit")
	}
	if a.OrgID != orgID {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit not found")
	}
	return a, nil
}

// PatchAuditStatus applies an operator status transition. Unknown values and
// unsupported transitions are rejected and leave the audit unchanged.
func (s *Service) PatchAuditStatus(ctx context.Context, orgID id.OrganizationID, auditID id.AuditID, status string) (*models.Audit, error) {
	next, err := models.ParseAuditStatus(status)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var updated *models.Audit
	err = s.tx.RunInTx(ctx, orgID, func(ctx context.Context, store Store) error {
		a, err := store.FindAuditByID(ctx, auditID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "audit not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to retrieve audit")
		}
		if a.OrgID != orgID {
			return dErrors.New(dErrors.CodeNotFound, "audit not found")
		}
		previous := a.Status
		if err := a.Transition(next, now); err != nil {
			return err
		}
		if err := store.UpdateAuditStatus(ctx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update audit")
		}
		updated = a
		return s.emit(ctx, audit.Event{
			Type:           audit.EventAuditStatusChanged,
			Timestamp:      now,
			OrganizationID: orgID.String(),
			Subject:        a.ID.String(),
			RuleID:         string(a.RuleID),
			Severity:       string(a.Severity),
			Decision:       string(previous) + "->" + string(next),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(next))
	s.invalidate(ctx, orgID)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "audit status updated",
			"organization_id", orgID.String(),
			"audit_id", auditID.String(),
			"status", string(next),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return updated, nil
}

// ResolveViolation records an operator's resolution of a violation report.
func (s *Service) ResolveViolation(ctx context.Context, orgID id.OrganizationID, violationID id.ViolationID, resolved bool, notes string) (*models.Violation, error) {
	now := requestcontext.Now(ctx)
	var updated *models.Violation
	err := s.tx.RunInTx(ctx, orgID, func(ctx context.Context, store Store) error {
		v, err := store.FindViolationByID(ctx, violationID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "violation not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to retrieve violation")
		}
		if v.OrgID != orgID {
			return dErrors.New(dErrors.CodeNotFound, "violation not found")
		}
		v.Resolved = resolved
		v.ResolutionNotes = notes
		if err := store.UpdateViolationResolution(ctx, v); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update violation")
		}
		updated = v
		decision := "reopened"
		if resolved {
			decision = "resolved"
		}
		return s.emit(ctx, audit.Event{
			Type:           audit.EventViolationResolved,
			Timestamp:      now,
			OrganizationID: orgID.String(),
			Subject:        v.ID.String(),
			RuleID:         string(v.ViolationType),
			Decision:       decision,
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, orgID)
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context, orgID id.OrganizationID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orgID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "report cache invalidation failed", "organization_id", orgID.String(), "error", err)
	}
}

func nonNilAudits(in []models.Audit) []models.Audit {
	if in == nil {
		return []models.Audit{}
	}
	return in
}

func nonNilViolations(in []models.Violation) []models.Violation {
	if in == nil {
		return []models.Violation{}
	}
	return in
}
