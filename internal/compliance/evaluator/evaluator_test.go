package evaluator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"truconn/internal/access"
	"truconn/internal/compliance/models"
	"truconn/internal/compliance/ports/mocks"
	"truconn/internal/compliance/rules"
	id "truconn/pkg/domain"
	"truconn/pkg/requestcontext"
)

// =============================================================================
// Evaluator Test Suite
// =============================================================================
// Covers each rule's thresholds and the aggregation performed by RunAllChecks.

type EvaluatorSuite struct {
	suite.Suite
	data      *access.InMemoryStore
	evaluator *Evaluator
	org       id.OrganizationID
	now       time.Time
	ctx       context.Context
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

func (s *EvaluatorSuite) SetupTest() {
	s.data = access.NewInMemoryStore()
	var err error
	s.evaluator, err = New(s.data)
	s.Require().NoError(err)
	s.org = id.OrganizationID(uuid.New())
	s.now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func ptr(s string) *string { return &s }

func (s *EvaluatorSuite) addRequest(user id.UserID, ct id.ConsentTypeID, status models.RequestStatus, purpose *string, at time.Time) models.AccessRequest {
	req := models.AccessRequest{
		ID:              id.AccessRequestID(uuid.New()),
		OrgID:           s.org,
		UserID:          user,
		ConsentTypeID:   ct,
		ConsentTypeName: "Financial Records",
		Purpose:         purpose,
		Status:          status,
		RequestedAt:     at,
	}
	s.data.AddRequest(req)
	return req
}

func (s *EvaluatorSuite) grant(user id.UserID, ct id.ConsentTypeID, access bool) {
	s.data.PutConsent(models.UserConsent{UserID: user, ConsentTypeID: ct, Access: access, GrantedAt: s.now.AddDate(0, -1, 0)})
}

func newUser() id.UserID               { return id.UserID(uuid.New()) }
func newConsentType() id.ConsentTypeID { return id.ConsentTypeID(uuid.New()) }

const goodPurpose = "need this for billing reconciliation"

// =============================================================================
// Constructor
// =============================================================================

func (s *EvaluatorSuite) TestNew() {
	s.Run("nil port returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "data access port is required")
	})
}

// =============================================================================
// Rule checks
// =============================================================================

func (s *EvaluatorSuite) TestConsentValidity() {
	valid, revoked, missing := newUser(), newUser(), newUser()
	ct := newConsentType()
	s.addRequest(valid, ct, models.RequestApproved, ptr(goodPurpose), s.now)
	s.grant(valid, ct, true)
	revokedReq := s.addRequest(revoked, ct, models.RequestApproved, ptr(goodPurpose), s.now)
	s.grant(revoked, ct, false)
	missingReq := s.addRequest(missing, ct, models.RequestApproved, ptr(goodPurpose), s.now)
	// Pending requests are ignored even without consent.
	s.addRequest(newUser(), ct, models.RequestPending, ptr(goodPurpose), s.now)

	findings, err := s.evaluator.CheckConsentValidity(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Require().Len(findings, 2)

	flagged := map[string]bool{}
	for _, f := range findings {
		s.Equal(rules.ConsentValidity, f.RuleID)
		s.Equal("Financial Records", f.Details["consent_type"])
		flagged[f.Details["access_request_id"].(string)] = true
	}
	s.True(flagged[revokedReq.ID.String()])
	s.True(flagged[missingReq.ID.String()])
	s.Contains(findings[0].Recommendation, "Revoke access request #")
}

func (s *EvaluatorSuite) TestRevocationHandlingMatchesConsentValidity() {
	ct := newConsentType()
	for i := 0; i < 3; i++ {
		u := newUser()
		s.addRequest(u, ct, models.RequestApproved, ptr(goodPurpose), s.now)
		s.grant(u, ct, i == 0)
	}

	validity, err := s.evaluator.CheckConsentValidity(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	revocation, err := s.evaluator.CheckRevocationHandling(s.ctx, s.org, s.now)
	s.Require().NoError(err)

	s.Len(validity, 2)
	s.Require().Len(revocation, len(validity))
	for i := range revocation {
		s.Equal(rules.RevocationHandling, revocation[i].RuleID)
		s.Equal(validity[i].Details["access_request_id"], revocation[i].Details["access_request_id"])
		s.Contains(revocation[i].Recommendation, "IMMEDIATELY revoke access request #")
	}
}

func (s *EvaluatorSuite) TestPurposeLimitation() {
	ct := newConsentType()
	empty := s.addRequest(newUser(), ct, models.RequestPending, ptr(""), s.now)
	short := s.addRequest(newUser(), ct, models.RequestPending, ptr("short one"), s.now)
	vague := s.addRequest(newUser(), ct, models.RequestApproved, ptr("  Research  "), s.now)
	absent := s.addRequest(newUser(), ct, models.RequestDenied, nil, s.now)
	s.addRequest(newUser(), ct, models.RequestApproved, ptr(goodPurpose), s.now)

	findings, err := s.evaluator.CheckPurposeLimitation(s.ctx, s.org, s.now)
	s.Require().NoError(err)

	ids := map[string]bool{}
	for _, f := range findings {
		ids[f.Details["access_request_id"].(string)] = true
	}
	s.Len(findings, 4)
	s.True(ids[empty.ID.String()])
	s.True(ids[short.ID.String()])
	s.True(ids[vague.ID.String()])
	s.True(ids[absent.ID.String()])
}

func (s *EvaluatorSuite) TestIsVaguePurpose() {
	s.True(IsVaguePurpose(""))
	s.True(IsVaguePurpose("short one"))
	s.True(IsVaguePurpose("GENERAL"))
	s.True(IsVaguePurpose("   testing   "))
	s.False(IsVaguePurpose("need this for billing reconciliation"))
	s.False(IsVaguePurpose("0123456789"))
}

func (s *EvaluatorSuite) TestDataMinimization() {
	seed := func(users, typesPerUser, distinctTypes int) {
		types := make([]id.ConsentTypeID, distinctTypes)
		for i := range types {
			types[i] = newConsentType()
		}
		for u := 0; u < users; u++ {
			user := newUser()
			for t := 0; t < typesPerUser; t++ {
				s.addRequest(user, types[(u*typesPerUser+t)%distinctTypes], models.RequestApproved, ptr(goodPurpose), s.now)
			}
		}
	}

	s.Run("ratio 4.0 is flagged", func() {
		s.SetupTest()
		seed(2, 4, 8)
		findings, err := s.evaluator.CheckDataMinimization(s.ctx, s.org, s.now)
		s.Require().NoError(err)
		s.Require().Len(findings, 1)
		s.Equal(2, findings[0].Details["unique_users"])
		s.Equal(8, findings[0].Details["consent_types_accessed"])
		s.Equal(4.0, findings[0].Details["avg_consents_per_user"])
	})

	s.Run("ratio 3.0 is not flagged", func() {
		s.SetupTest()
		seed(2, 3, 6)
		findings, err := s.evaluator.CheckDataMinimization(s.ctx, s.org, s.now)
		s.Require().NoError(err)
		s.Empty(findings)
	})

	s.Run("ratio is rounded to two decimals", func() {
		s.SetupTest()
		seed(3, 4, 11)
		findings, err := s.evaluator.CheckDataMinimization(s.ctx, s.org, s.now)
		s.Require().NoError(err)
		s.Require().Len(findings, 1)
		s.Equal(3.67, findings[0].Details["avg_consents_per_user"])
	})

	s.Equal(0.0, ConsentRatio(0, 5))
	s.Equal(3.5, ConsentRatio(2, 7))
}

func (s *EvaluatorSuite) TestRetentionPolicy() {
	ct := newConsentType()
	oldest := s.now.AddDate(-2, 0, 0)
	s.addRequest(newUser(), ct, models.RequestApproved, ptr(goodPurpose), oldest)
	s.addRequest(newUser(), ct, models.RequestApproved, ptr(goodPurpose), s.now.AddDate(-1, -1, 0))
	s.addRequest(newUser(), ct, models.RequestApproved, ptr(goodPurpose), s.now.AddDate(0, -6, 0))
	// Old but not approved.
	s.addRequest(newUser(), ct, models.RequestDenied, ptr(goodPurpose), oldest.AddDate(-1, 0, 0))

	findings, err := s.evaluator.CheckRetentionPolicy(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Require().Len(findings, 1)
	s.Equal(2, findings[0].Details["old_requests_count"])
	s.Equal("2023-06-15", findings[0].Details["oldest_request_date"])
}

func (s *EvaluatorSuite) TestAccessControl() {
	ct := newConsentType()
	for i := 0; i < 10; i++ {
		s.addRequest(newUser(), ct, models.RequestRevoked, ptr(goodPurpose), s.now)
	}
	findings, err := s.evaluator.CheckAccessControl(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Empty(findings, "exactly 10 revoked requests is not flagged")

	s.addRequest(newUser(), ct, models.RequestRevoked, ptr(goodPurpose), s.now)
	findings, err = s.evaluator.CheckAccessControl(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Require().Len(findings, 1)
	s.Equal(11, findings[0].Details["revoked_count"])
}

func (s *EvaluatorSuite) TestAuditTrail() {
	ct := newConsentType()
	s.addRequest(newUser(), ct, models.RequestApproved, ptr(goodPurpose), s.now)
	findings, err := s.evaluator.CheckAuditTrail(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Empty(findings)

	s.addRequest(newUser(), ct, models.RequestPending, nil, s.now)
	s.addRequest(newUser(), ct, models.RequestDenied, nil, s.now)
	s.addRequest(newUser(), ct, models.RequestPending, ptr(""), s.now)
	findings, err = s.evaluator.CheckAuditTrail(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Require().Len(findings, 1)
	s.Equal(2, findings[0].Details["missing_purpose_count"])
}

func (s *EvaluatorSuite) TestExcessiveRequests() {
	ct := newConsentType()
	for i := 0; i < 100; i++ {
		s.addRequest(newUser(), ct, models.RequestPending, ptr(goodPurpose), s.now.Add(-time.Duration(i)*time.Hour))
	}
	// Outside the trailing window.
	s.addRequest(newUser(), ct, models.RequestPending, ptr(goodPurpose), s.now.AddDate(0, 0, -31))

	findings, err := s.evaluator.CheckExcessiveRequests(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Empty(findings, "exactly 100 requests is not flagged")

	s.addRequest(newUser(), ct, models.RequestPending, ptr(goodPurpose), s.now)
	findings, err = s.evaluator.CheckExcessiveRequests(s.ctx, s.org, s.now)
	s.Require().NoError(err)
	s.Require().Len(findings, 1)
	s.Equal(101, findings[0].Details["requests_count"])
	s.Equal(30, findings[0].Details["period_days"])
}

// =============================================================================
// RunAllChecks
// =============================================================================

func (s *EvaluatorSuite) TestRunAllChecksEmptyOrganization() {
	result, err := s.evaluator.RunAllChecks(s.ctx, s.org)
	s.Require().NoError(err)
	s.Empty(result.Violations)
	s.NotNil(result.Violations)
	s.Equal(0, result.RiskScore)
	s.Equal(0, result.TotalViolations)
}

func (s *EvaluatorSuite) TestRunAllChecksAggregates() {
	ct := newConsentType()
	u := newUser()
	// One approved request without consent: CONSENT_VALIDITY (HIGH) + REVOCATION_HANDLING (CRITICAL).
	s.addRequest(u, ct, models.RequestApproved, ptr(goodPurpose), s.now)
	// One pending request with no purpose: PURPOSE_LIMITATION (HIGH) + AUDIT_TRAIL (HIGH).
	s.addRequest(newUser(), ct, models.RequestPending, nil, s.now)

	result, err := s.evaluator.RunAllChecks(s.ctx, s.org)
	s.Require().NoError(err)

	s.Equal(4, result.TotalViolations)
	s.Equal(1, result.CriticalCount)
	s.Equal(3, result.HighCount)
	s.Equal(0, result.MediumCount)
	s.Equal(20+15*3, result.RiskScore)

	got := make([]rules.RuleID, 0, len(result.Violations))
	for _, f := range result.Violations {
		got = append(got, f.RuleID)
	}
	s.Equal([]rules.RuleID{
		rules.ConsentValidity,
		rules.PurposeLimitation,
		rules.AuditTrail,
		rules.RevocationHandling,
	}, got, "findings follow catalog order")
}

func (s *EvaluatorSuite) TestRunAllChecksSequentialMatchesParallel() {
	ct := newConsentType()
	for i := 0; i < 12; i++ {
		s.addRequest(newUser(), ct, models.RequestRevoked, ptr("x"), s.now)
	}
	parallel, err := s.evaluator.RunAllChecks(s.ctx, s.org)
	s.Require().NoError(err)

	sequential, err := New(s.data, WithMaxParallel(1))
	s.Require().NoError(err)
	seq, err := sequential.RunAllChecks(s.ctx, s.org)
	s.Require().NoError(err)

	s.Equal(parallel, seq)
}

func (s *EvaluatorSuite) TestRunAllChecksPropagatesPortErrors() {
	boom := errors.New("connection refused")
	port := mocks.NewMockDataAccessPort(gomock.NewController(s.T()))
	port.EXPECT().FetchRequests(gomock.Any(), s.org, gomock.Any()).Return(nil, boom).AnyTimes()
	port.EXPECT().FetchRequestsSince(gomock.Any(), s.org, gomock.Any()).Return(nil, fmt.Errorf("since: %w", boom)).AnyTimes()

	e, err := New(port)
	s.Require().NoError(err)

	_, err = e.RunAllChecks(s.ctx, s.org)
	s.Require().Error(err)
	s.ErrorIs(err, boom)
}

func (s *EvaluatorSuite) TestConsentLookupFailureFailsTheCheck() {
	boom := errors.New("consent table unavailable")
	req := models.AccessRequest{
		ID:            id.AccessRequestID(uuid.New()),
		OrgID:         s.org,
		UserID:        newUser(),
		ConsentTypeID: newConsentType(),
		Status:        models.RequestApproved,
		RequestedAt:   s.now.Add(-time.Hour),
	}
	port := mocks.NewMockDataAccessPort(gomock.NewController(s.T()))
	port.EXPECT().FetchRequests(gomock.Any(), s.org, gomock.Any()).Return([]models.AccessRequest{req}, nil)
	port.EXPECT().FetchConsent(gomock.Any(), req.UserID, req.ConsentTypeID).Return(nil, boom)

	e, err := New(port)
	s.Require().NoError(err)

	_, err = e.CheckConsentValidity(s.ctx, s.org, s.now)
	s.ErrorIs(err, boom)
}
