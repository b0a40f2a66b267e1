package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	id "truconn/pkg/domain"
	"truconn/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	org   id.OrganizationID
	other id.OrganizationID
	now   time.Time
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory(testWindow)
	s.org = id.OrganizationID(uuid.New())
	s.other = id.OrganizationID(uuid.New())
	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) newAudit(org id.OrganizationID, rule rules.RuleID, at time.Time) *models.Audit {
	return &models.Audit{
		ID:         id.AuditID(uuid.New()),
		OrgID:      org,
		RuleID:     rule,
		Severity:   rules.SeverityHigh,
		Status:     models.AuditPending,
		Details:    models.Details{"request_id": "r-1"},
		DetectedAt: at,
	}
}

func (s *InMemoryStoreSuite) TestFindAuditSinceReturnsNewestInWindow() {
	older := s.newAudit(s.org, rules.AccessControl, s.now.Add(-40*24*time.Hour))
	newer := s.newAudit(s.org, rules.AccessControl, s.now.Add(-time.Hour))
	s.Require().NoError(s.store.InsertAudit(s.ctx, older))
	s.Require().NoError(s.store.InsertAudit(s.ctx, newer))

	found, err := s.store.FindAuditSince(s.ctx, s.org, rules.AccessControl, s.now.Add(-testWindow))
	s.Require().NoError(err)
	s.Equal(newer.ID, found.ID)

	_, err = s.store.FindAuditSince(s.ctx, s.other, rules.AccessControl, s.now.Add(-testWindow))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestInsertAuditBackstopRejectsSameBucket() {
	first := s.newAudit(s.org, rules.AuditTrail, s.now)
	second := s.newAudit(s.org, rules.AuditTrail, s.now.Add(time.Second))
	s.Require().NoError(s.store.InsertAudit(s.ctx, first))

	err := s.store.InsertAudit(s.ctx, second)
	s.ErrorIs(err, sentinel.ErrDuplicate)

	s.NoError(s.store.InsertAudit(s.ctx, s.newAudit(s.other, rules.AuditTrail, s.now)))
	s.NoError(s.store.InsertAudit(s.ctx, s.newAudit(s.org, rules.RetentionPolicy, s.now)))
}

func (s *InMemoryStoreSuite) TestReturnedRecordsAreCopies() {
	a := s.newAudit(s.org, rules.AuditTrail, s.now)
	s.Require().NoError(s.store.InsertAudit(s.ctx, a))
	a.Details["request_id"] = "mutated"

	found, err := s.store.FindAuditByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("r-1", found.Details["request_id"])

	found.Status = models.AuditDismissed
	again, err := s.store.FindAuditByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.AuditPending, again.Status)
}

func (s *InMemoryStoreSuite) TestUpdateAuditStatus() {
	a := s.newAudit(s.org, rules.AuditTrail, s.now)
	s.Require().NoError(s.store.InsertAudit(s.ctx, a))

	resolvedAt := s.now.Add(time.Hour)
	a.Status = models.AuditResolved
	a.ResolvedAt = &resolvedAt
	s.Require().NoError(s.store.UpdateAuditStatus(s.ctx, a))

	found, err := s.store.FindAuditByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.AuditResolved, found.Status)
	s.Require().NotNil(found.ResolvedAt)
	s.True(found.ResolvedAt.Equal(resolvedAt))

	err = s.store.UpdateAuditStatus(s.ctx, s.newAudit(s.org, rules.AuditTrail, s.now))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListAuditsFiltersAndOrders() {
	for i, rule := range []rules.RuleID{rules.AuditTrail, rules.AccessControl, rules.RetentionPolicy} {
		s.Require().NoError(s.store.InsertAudit(s.ctx, s.newAudit(s.org, rule, s.now.Add(-time.Duration(i)*time.Hour))))
	}
	stale := s.newAudit(s.org, rules.ConsentValidity, s.now.Add(-60*24*time.Hour))
	s.Require().NoError(s.store.InsertAudit(s.ctx, stale))

	all, err := s.store.ListAudits(s.ctx, s.org, models.AuditFilter{})
	s.Require().NoError(err)
	s.Len(all, 4)

	recent, err := s.store.ListAudits(s.ctx, s.org, models.AuditFilter{Since: s.now.Add(-testWindow), Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(rules.AuditTrail, recent[0].RuleID)
	s.Equal(rules.AccessControl, recent[1].RuleID)

	resolved, err := s.store.ListAudits(s.ctx, s.org, models.AuditFilter{Status: models.AuditResolved})
	s.Require().NoError(err)
	s.Empty(resolved)
}

func (s *InMemoryStoreSuite) TestInsertViolationRequiresSameOrganizationAudit() {
	a := s.newAudit(s.org, rules.ConsentValidity, s.now)
	s.Require().NoError(s.store.InsertAudit(s.ctx, a))

	foreign := s.newAudit(s.other, rules.ConsentValidity, s.now)
	s.Require().NoError(s.store.InsertAudit(s.ctx, foreign))

	v := &models.Violation{
		ID:             id.ViolationID(uuid.New()),
		OrgID:          s.org,
		ViolationType:  rules.ConsentValidity,
		RelatedAuditID: &foreign.ID,
		DetectedAt:     s.now,
	}
	s.ErrorIs(s.store.InsertViolation(s.ctx, v), sentinel.ErrInvalidState)

	v.RelatedAuditID = &a.ID
	s.Require().NoError(s.store.InsertViolation(s.ctx, v))

	dup := *v
	dup.ID = id.ViolationID(uuid.New())
	s.ErrorIs(s.store.InsertViolation(s.ctx, &dup), sentinel.ErrDuplicate)

	unresolved, err := s.store.ListViolations(s.ctx, s.org, models.ViolationFilter{UnresolvedOnly: true})
	s.Require().NoError(err)
	s.Len(unresolved, 1)

	v.Resolved = true
	v.ResolutionNotes = "consent re-collected"
	s.Require().NoError(s.store.UpdateViolationResolution(s.ctx, v))
	unresolved, err = s.store.ListViolations(s.ctx, s.org, models.ViolationFilter{UnresolvedOnly: true})
	s.Require().NoError(err)
	s.Empty(unresolved)

	found, err := s.store.FindViolationByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal("consent re-collected", found.ResolutionNotes)
}

func (s *InMemoryStoreSuite) TestCheckpointRestoresOnlyThatOrganization() {
	kept := s.newAudit(s.org, rules.AuditTrail, s.now)
	s.Require().NoError(s.store.InsertAudit(s.ctx, kept))

	restore := s.store.Checkpoint(s.org)

	discarded := s.newAudit(s.org, rules.AccessControl, s.now)
	s.Require().NoError(s.store.InsertAudit(s.ctx, discarded))
	otherOrg := s.newAudit(s.other, rules.AccessControl, s.now)
	s.Require().NoError(s.store.InsertAudit(s.ctx, otherOrg))

	restore()

	_, err := s.store.FindAuditByID(s.ctx, discarded.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindAuditByID(s.ctx, kept.ID)
	s.NoError(err)
	_, err = s.store.FindAuditByID(s.ctx, otherOrg.ID)
	s.NoError(err)

	// the discarded row's dedup slot is free again
	s.NoError(s.store.InsertAudit(s.ctx, s.newAudit(s.org, rules.AccessControl, s.now)))
}
