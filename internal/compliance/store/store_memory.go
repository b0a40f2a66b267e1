package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	id "truconn/pkg/domain"
	"truconn/pkg/platform/sentinel"
)

type dedupKey struct {
	org    id.OrganizationID
	rule   rules.RuleID
	bucket int64
}

// InMemoryStore keeps audits and violations in maps. It enforces the same
// dedup-bucket backstop as the Postgres schema and supports checkpoints so a
// failed in-memory transaction can be rolled back.
type InMemoryStore struct {
	mu            sync.RWMutex
	window        time.Duration
	audits        map[id.AuditID]models.Audit
	violations    map[id.ViolationID]models.Violation
	auditKeys     map[dedupKey]id.AuditID
	violationKeys map[dedupKey]id.ViolationID
}

func NewInMemory(window time.Duration) *InMemoryStore {
	return &InMemoryStore{
		window:        window,
		audits:        make(map[id.AuditID]models.Audit),
		violations:    make(map[id.ViolationID]models.Violation),
		auditKeys:     make(map[dedupKey]id.AuditID),
		violationKeys: make(map[dedupKey]id.ViolationID),
	}
}

func copyAudit(a models.Audit) models.Audit {
	if a.Details != nil {
		details := make(models.Details, len(a.Details))
		for k, v := range a.Details {
			details[k] = v
		}
		a.Details = details
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		a.ResolvedAt = &t
	}
	return a
}

func copyViolation(v models.Violation) models.Violation {
	if v.RelatedAuditID != nil {
		related := *v.RelatedAuditID
		v.RelatedAuditID = &related
	}
	return v
}

func (s *InMemoryStore) FindAuditSince(_ context.Context, orgID id.OrganizationID, ruleID rules.RuleID, since time.Time) (*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Audit
	for _, a := range s.audits {
		if a.OrgID != orgID || a.RuleID != ruleID || a.DetectedAt.Before(since) {
			continue
		}
		if found == nil || a.DetectedAt.After(found.DetectedAt) {
			cp := copyAudit(a)
			found = &cp
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found, nil
}

func (s *InMemoryStore) InsertAudit(_ context.Context, a *models.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dedupKey{a.OrgID, a.RuleID, DedupBucket(a.DetectedAt, s.window)}
	if _, exists := s.auditKeys[key]; exists {
		return sentinel.ErrDuplicate
	}
	s.auditKeys[key] = a.ID
	s.audits[a.ID] = copyAudit(*a)
	return nil
}

func (s *InMemoryStore) FindAuditByID(_ context.Context, auditID id.AuditID) (*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.audits[auditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := copyAudit(a)
	return &cp, nil
}

func (s *InMemoryStore) UpdateAuditStatus(_ context.Context, a *models.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.audits[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Status = a.Status
	existing.ResolvedAt = nil
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		existing.ResolvedAt = &t
	}
	s.audits[a.ID] = existing
	return nil
}

func (s *InMemoryStore) ListAudits(_ context.Context, orgID id.OrganizationID, filter models.AuditFilter) ([]models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Audit
	for _, a := range s.audits {
		if a.OrgID != orgID {
			continue
		}
		if !filter.Since.IsZero() && a.DetectedAt.Before(filter.Since) {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, copyAudit(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) FindViolationSince(_ context.Context, orgID id.OrganizationID, ruleID rules.RuleID, since time.Time) (*models.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Violation
	for _, v := range s.violations {
		if v.OrgID != orgID || v.ViolationType != ruleID || v.DetectedAt.Before(since) {
			continue
		}
		if found == nil || v.DetectedAt.After(found.DetectedAt) {
			cp := copyViolation(v)
			found = &cp
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found, nil
}

func (s *InMemoryStore) InsertViolation(_ context.Context, v *models.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.RelatedAuditID != nil {
		related, ok := s.audits[*v.RelatedAuditID]
		if !ok || related.OrgID != v.OrgID {
			return sentinel.ErrInvalidState
		}
	}
	key := dedupKey{v.OrgID, v.ViolationType, DedupBucket(v.DetectedAt, s.window)}
	if _, exists := s.violationKeys[key]; exists {
		return sentinel.ErrDuplicate
	}
	s.violationKeys[key] = v.ID
	s.violations[v.ID] = copyViolation(*v)
	return nil
}

func (s *InMemoryStore) FindViolationByID(_ context.Context, violationID id.ViolationID) (*models.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.violations[violationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := copyViolation(v)
	return &cp, nil
}

func (s *InMemoryStore) UpdateViolationResolution(_ context.Context, v *models.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.violations[v.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Resolved = v.Resolved
	existing.ResolutionNotes = v.ResolutionNotes
	s.violations[v.ID] = existing
	return nil
}

func (s *InMemoryStore) ListViolations(_ context.Context, orgID id.OrganizationID, filter models.ViolationFilter) ([]models.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Violation
	for _, v := range s.violations {
		if v.OrgID != orgID {
			continue
		}
		if !filter.Since.IsZero() && v.DetectedAt.Before(filter.Since) {
			continue
		}
		if filter.UnresolvedOnly && v.Resolved {
			continue
		}
		out = append(out, copyViolation(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Checkpoint captures the organization's records. The returned func restores
// them, discarding anything written for that organization in between.
func (s *InMemoryStore) Checkpoint(orgID id.OrganizationID) func() {
	s.mu.RLock()
	audits := make(map[id.AuditID]models.Audit)
	violations := make(map[id.ViolationID]models.Violation)
	for k, a := range s.audits {
		if a.OrgID == orgID {
			audits[k] = copyAudit(a)
		}
	}
	for k, v := range s.violations {
		if v.OrgID == orgID {
			violations[k] = copyViolation(v)
		}
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for k, a := range s.audits {
			if a.OrgID == orgID {
				delete(s.audits, k)
			}
		}
		for k, v := range s.violations {
			if v.OrgID == orgID {
				delete(s.violations, k)
			}
		}
		for k := range s.auditKeys {
			if k.org == orgID {
				delete(s.auditKeys, k)
			}
		}
		for k := range s.violationKeys {
			if k.org == orgID {
				delete(s.violationKeys, k)
			}
		}
		for k, a := range audits {
			s.audits[k] = a
			s.auditKeys[dedupKey{a.OrgID, a.RuleID, DedupBucket(a.DetectedAt, s.window)}] = k
		}
		for k, v := range violations {
			s.violations[k] = v
			s.violationKeys[dedupKey{v.OrgID, v.ViolationType, DedupBucket(v.DetectedAt, s.window)}] = k
		}
	}
}
