package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	id "truconn/pkg/domain"
	audit "truconn/pkg/platform/audit"
	"truconn/pkg/platform/sentinel"
	"truconn/pkg/requestcontext"
)

// reconcileResult lists the records a scan's findings map to, in finding order.
type reconcileResult struct {
	audits            []models.Audit
	violations        []models.Violation
	createdAudits     int
	createdViolations int
}

// reconcile materializes findings as audits and violation reports. It must run
// inside RunInTx: each find-then-insert relies on the per-organization writer
// lock, and the dedup-bucket backstop turns any race it misses into a
// duplicate that is resolved by re-reading the existing row.
func (s *Service) reconcile(ctx context.Context, store Store, orgID id.OrganizationID, findings []models.Finding, now time.Time) (*reconcileResult, error) {
	since := now.Add(-s.dedupWindow)
	catalog := s.evaluator.Catalog()
	res := &reconcileResult{audits: []models.Audit{}, violations: []models.Violation{}}
	handled := make(map[rules.RuleID]struct{})

	for _, f := range findings {
		if _, done := handled[f.RuleID]; done {
			continue
		}
		handled[f.RuleID] = struct{}{}
		rule := catalog.MustLookup(f.RuleID)

		a, created, err := s.findOrInsertAudit(ctx, store, orgID, rule, f, now, since)
		if err != nil {
			return nil, err
		}
		res.audits = append(res.audits, *a)
		if created {
			res.createdAudits++
		}

		if !rule.Severity.Escalates() {
			continue
		}
		if !created {
			// Reports are only opened alongside a new audit.
			v, err := store.FindViolationSince(ctx, orgID, rule.ID, since)
			switch {
			case err == nil:
				res.violations = append(res.violations, *v)
			case !errors.Is(err, sentinel.ErrNotFound):
				return nil, err
			}
			continue
		}

		v, vCreated, err := s.findOrInsertViolation(ctx, store, orgID, rule, f, a, now, since)
		if err != nil {
			return nil, err
		}
		res.violations = append(res.violations, *v)
		if vCreated {
			res.createdViolations++
		}
	}
	return res, nil
}

func (s *Service) findOrInsertAudit(
	ctx context.Context,
	store Store,
	orgID id.OrganizationID,
	rule rules.Rule,
	f models.Finding,
	now, since time.Time,
) (*models.Audit, bool, error) {
	existing, err := store.FindAuditSince(ctx, orgID, rule.ID, since)
	if err == nil {
		s.metrics.IncDeduplicated("audit")
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, err
	}

	a := &models.Audit{
		ID:              id.AuditID(uuid.New()),
		OrgID:           orgID,
		RuleID:          rule.ID,
		RuleName:        rule.Name,
		RuleDescription: rule.Description,
		Severity:        rule.Severity,
		Status:          models.AuditPending,
		Details:         f.Details,
		Recommendation:  f.Recommendation,
		DetectedAt:      now,
	}
	if a.Details == nil {
		a.Details = models.Details{}
	}
	if err := store.InsertAudit(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			s.metrics.IncDeduplicated("audit")
			existing, findErr := store.FindAuditSince(ctx, orgID, rule.ID, since)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	s.metrics.IncCreated("audit")

	if err := s.emit(ctx, audit.Event{
		Type:           audit.EventAuditRecorded,
		Timestamp:      now,
		OrganizationID: orgID.String(),
		Subject:        a.ID.String(),
		RuleID:         string(rule.ID),
		Severity:       string(rule.Severity),
		Decision:       string(models.AuditPending),
	}); err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (s *Service) findOrInsertViolation(
	ctx context.Context,
	store Store,
	orgID id.OrganizationID,
	rule rules.Rule,
	f models.Finding,
	a *models.Audit,
	now, since time.Time,
) (*models.Violation, bool, error) {
	existing, err := store.FindViolationSince(ctx, orgID, rule.ID, since)
	if err == nil {
		s.metrics.IncDeduplicated("violation")
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, err
	}

	description := f.Recommendation
	if description == "" {
		description = rule.Description
	}
	affected := 0
	if f.ReferencesUser() {
		affected = 1
	}
	relatedAudit := a.ID
	v := &models.Violation{
		ID:                 id.ViolationID(uuid.New()),
		OrgID:              orgID,
		ViolationType:      rule.ID,
		Description:        description,
		AffectedUsersCount: affected,
		ReportedToDPO:      rule.Severity == rules.SeverityCritical,
		RelatedAuditID:     &relatedAudit,
		DetectedAt:         now,
	}
	if err := store.InsertViolation(ctx, v); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			s.metrics.IncDeduplicated("violation")
			existing, findErr := store.FindViolationSince(ctx, orgID, rule.ID, since)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	s.metrics.IncCreated("violation")

	if err := s.emit(ctx, audit.Event{
		Type:           audit.EventViolationReported,
		Timestamp:      now,
		OrganizationID: orgID.String(),
		Subject:        v.ID.String(),
		RuleID:         string(rule.ID),
		Severity:       string(rule.Severity),
		Decision:       reportedDecision(v.ReportedToDPO),
	}); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func reportedDecision(toDPO bool) string {
	if toDPO {
		return "reported_to_dpo"
	}
	return "recorded"
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.publisher == nil {
		return nil
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		if user := requestcontext.UserID(ctx); !user.IsNil() {
			event.ActorID = user.String()
		}
	}
	return s.publisher.Emit(ctx, event)
}
