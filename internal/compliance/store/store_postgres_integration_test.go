//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	"truconn/internal/compliance/store"
	id "truconn/pkg/domain"
	"truconn/pkg/platform/sentinel"
	"truconn/pkg/testutil/containers"
)

const window = 30 * 24 * time.Hour

type PostgresComplianceSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	org      id.OrganizationID
	other    id.OrganizationID
}

func TestPostgresComplianceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresComplianceSuite))
}

func (s *PostgresComplianceSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB, window)
}

func (s *PostgresComplianceSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "violation_reports", "compliance_audits", "organizations"))

	s.org = id.OrganizationID(uuid.New())
	s.other = id.OrganizationID(uuid.New())
	for _, org := range []id.OrganizationID{s.org, s.other} {
		_, err := s.postgres.DB.ExecContext(ctx,
			`INSERT INTO organizations (id, name, owner_id) VALUES ($1, $2, $3)`,
			uuid.UUID(org), "Org "+org.String()[:8], uuid.New())
		s.Require().NoError(err)
	}
}

func (s *PostgresComplianceSuite) newAudit(org id.OrganizationID, rule rules.RuleID, at time.Time) *models.Audit {
	return &models.Audit{
		ID:              id.AuditID(uuid.New()),
		OrgID:           org,
		RuleID:          rule,
		RuleName:        "name",
		RuleDescription: "description",
		Severity:        rules.SeverityCritical,
		Status:          models.AuditPending,
		Details:         models.Details{"user_id": "u-1", "consent_type": "Marketing"},
		Recommendation:  "Obtain valid consent",
		DetectedAt:      at.UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresComplianceSuite) TestAuditRoundTrip() {
	ctx := context.Background()
	now := time.Now()
	a := s.newAudit(s.org, rules.ConsentValidity, now)
	s.Require().NoError(s.store.InsertAudit(ctx, a))

	found, err := s.store.FindAuditByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.OrgID, found.OrgID)
	s.Equal("Marketing", found.Details["consent_type"])
	s.True(a.DetectedAt.Equal(found.DetectedAt))

	resolvedAt := now.UTC().Truncate(time.Microsecond)
	found.Status = models.AuditResolved
	found.ResolvedAt = &resolvedAt
	s.Require().NoError(s.store.UpdateAuditStatus(ctx, found))

	pending, err := s.store.ListAudits(ctx, s.org, models.AuditFilter{Status: models.AuditPending})
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *PostgresComplianceSuite) TestResolvedAtCheckConstraint() {
	ctx := context.Background()
	a := s.newAudit(s.org, rules.AuditTrail, time.Now())
	s.Require().NoError(s.store.InsertAudit(ctx, a))

	a.Status = models.AuditResolved
	a.ResolvedAt = nil
	s.Error(s.store.UpdateAuditStatus(ctx, a))
}

// TestConcurrentInsertsKeepOneRow races inserts for the same rule and bucket
// without any application lock; the unique backstop must admit exactly one.
func (s *PostgresComplianceSuite) TestConcurrentInsertsKeepOneRow() {
	ctx := context.Background()
	now := time.Now()
	const goroutines = 20

	var wg sync.WaitGroup
	var inserted, duplicates atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.InsertAudit(ctx, s.newAudit(s.org, rules.AccessControl, now))
			switch {
			case err == nil:
				inserted.Add(1)
			case errors.Is(err, sentinel.ErrDuplicate):
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), inserted.Load())
	s.Equal(int32(goroutines-1), duplicates.Load())

	all, err := s.store.ListAudits(ctx, s.org, models.AuditFilter{})
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *PostgresComplianceSuite) TestViolationMustReferenceSameOrganizationAudit() {
	ctx := context.Background()
	now := time.Now()
	foreign := s.newAudit(s.other, rules.ConsentValidity, now)
	s.Require().NoError(s.store.InsertAudit(ctx, foreign))

	v := &models.Violation{
		ID:             id.ViolationID(uuid.New()),
		OrgID:          s.org,
		ViolationType:  rules.ConsentValidity,
		Description:    "Obtain valid consent",
		RelatedAuditID: &foreign.ID,
		DetectedAt:     now.UTC().Truncate(time.Microsecond),
	}
	s.ErrorIs(s.store.InsertViolation(ctx, v), sentinel.ErrInvalidState)

	own := s.newAudit(s.org, rules.ConsentValidity, now)
	s.Require().NoError(s.store.InsertAudit(ctx, own))
	v.RelatedAuditID = &own.ID
	s.Require().NoError(s.store.InsertViolation(ctx, v))

	found, err := s.store.FindViolationSince(ctx, s.org, rules.ConsentValidity, now.Add(-window))
	s.Require().NoError(err)
	s.Equal(v.ID, found.ID)
	s.Require().NotNil(found.RelatedAuditID)
	s.Equal(own.ID, *found.RelatedAuditID)
}
