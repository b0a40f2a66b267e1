package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	id "truconn/pkg/domain"
)

const (
	minPurposeLength        = 10
	dataMinimizationRatio   = 3.5
	retentionPeriod         = 365 * 24 * time.Hour
	revokedRequestThreshold = 10
	excessiveWindowDays     = 30
	excessiveThreshold      = 100
)

var vaguePurposes = map[string]struct{}{
	"general":  {},
	"testing":  {},
	"research": {},
	"other":    {},
	"":         {},
}

func (e *Evaluator) approvedRequests(ctx context.Context, orgID id.OrganizationID) ([]models.AccessRequest, error) {
	status := models.RequestApproved
	return e.data.FetchRequests(ctx, orgID, &status)
}

// unconsentedRequests returns approved requests whose consent is absent or
// revoked. CONSENT_VALIDITY and REVOCATION_HANDLING share this predicate.
func (e *Evaluator) unconsentedRequests(ctx context.Context, orgID id.OrganizationID) ([]models.AccessRequest, error) {
	approved, err := e.approvedRequests(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var out []models.AccessRequest
	for _, req := range approved {
		consent, err := e.data.FetchConsent(ctx, req.UserID, req.ConsentTypeID)
		if err != nil {
			return nil, err
		}
		if consent == nil || !consent.Access {
			out = append(out, req)
		}
	}
	return out, nil
}

// CheckConsentValidity flags approved requests lacking an active consent.
func (e *Evaluator) CheckConsentValidity(ctx context.Context, orgID id.OrganizationID, _ time.Time) ([]models.Finding, error) {
	reqs, err := e.unconsentedRequests(ctx, orgID)
	if err != nil {
		return nil, err
	}
	findings := make([]models.Finding, 0, len(reqs))
	for _, req := range reqs {
		findings = append(findings, models.Finding{
			RuleID: rules.ConsentValidity,
			Details: models.Details{
				"access_request_id": req.ID.String(),
				"user_id":           req.UserID.String(),
				"consent_type":      req.ConsentTypeName,
				"issue":             "Access approved but user consent revoked",
			},
			Recommendation: fmt.Sprintf("Revoke access request #%s as user has revoked consent for %s", req.ID, req.ConsentTypeName),
		})
	}
	return findings, nil
}

// CheckPurposeLimitation flags every request with a vague or short purpose.
// A missing purpose counts as empty.
func (e *Evaluator) CheckPurposeLimitation(ctx context.Context, orgID id.OrganizationID, _ time.Time) ([]models.Finding, error) {
	reqs, err := e.data.FetchRequests(ctx, orgID, nil)
	if err != nil {
		return nil, err
	}
	var findings []models.Finding
	for _, req := range reqs {
		raw := req.PurposeText()
		if !IsVaguePurpose(raw) {
			continue
		}
		findings = append(findings, models.Finding{
			RuleID: rules.PurposeLimitation,
			Details: models.Details{
				"access_request_id": req.ID.String(),
				"purpose":           raw,
				"issue":             "Purpose is too vague or insufficient",
			},
			Recommendation: "Specify clear, specific purpose for data access (minimum 10 characters)",
		})
	}
	return findings, nil
}

// IsVaguePurpose reports whether a purpose fails the purpose-limitation rule.
func IsVaguePurpose(purpose string) bool {
	trimmed := strings.TrimSpace(purpose)
	if _, vague := vaguePurposes[strings.ToLower(trimmed)]; vague {
		return true
	}
	return len([]rune(trimmed)) < minPurposeLength
}

// CheckDataMinimization flags organizations whose approved requests span many
// consent types per user.
func (e *Evaluator) CheckDataMinimization(ctx context.Context, orgID id.OrganizationID, _ time.Time) ([]models.Finding, error) {
	approved, err := e.approvedRequests(ctx, orgID)
	if err != nil {
		return nil, err
	}
	users := make(map[id.UserID]struct{})
	consentTypes := make(map[id.ConsentTypeID]struct{})
	for _, req := range approved {
		users[req.UserID] = struct{}{}
		consentTypes[req.ConsentTypeID] = struct{}{}
	}
	ratio := ConsentRatio(len(users), len(consentTypes))
	if ratio < dataMinimizationRatio {
		return nil, nil
	}
	return []models.Finding{{
		RuleID: rules.DataMinimization,
		Details: models.Details{
			"unique_users":           len(users),
			"consent_types_accessed": len(consentTypes),
			"avg_consents_per_user":  math.Round(ratio*100) / 100,
			"issue":                  "Accessing multiple data types per user may violate data minimization",
		},
		Recommendation: "Review if all requested data types are necessary for stated purpose",
	}}, nil
}

// ConsentRatio is distinct consent types per distinct user, 0 with no users.
func ConsentRatio(users, consentTypes int) float64 {
	if users == 0 {
		return 0
	}
	return float64(consentTypes) / float64(users)
}

// CheckRetentionPolicy flags approved requests older than the retention period.
func (e *Evaluator) CheckRetentionPolicy(ctx context.Context, orgID id.OrganizationID, now time.Time) ([]models.Finding, error) {
	approved, err := e.approvedRequests(ctx, orgID)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-retentionPeriod)
	var (
		count  int
		oldest time.Time
	)
	for _, req := range approved {
		if !req.RequestedAt.Before(cutoff) {
			continue
		}
		if count == 0 || req.RequestedAt.Before(oldest) {
			oldest = req.RequestedAt
		}
		count++
	}
	if count == 0 {
		return nil, nil
	}
	return []models.Finding{{
		RuleID: rules.RetentionPolicy,
		Details: models.Details{
			"old_requests_count":  count,
			"oldest_request_date": oldest.UTC().Format(time.DateOnly),
			"issue":               fmt.Sprintf("%d approved access requests older than 1 year", count),
		},
		Recommendation: "Review and archive data access older than retention period (1 year)",
	}}, nil
}

// CheckAccessControl flags a high number of revoked requests.
func (e *Evaluator) CheckAccessControl(ctx context.Context, orgID id.OrganizationID, _ time.Time) ([]models.Finding, error) {
	status := models.RequestRevoked
	revoked, err := e.data.FetchRequests(ctx, orgID, &status)
	if err != nil {
		return nil, err
	}
	if len(revoked) <= revokedRequestThreshold {
		return nil, nil
	}
	return []models.Finding{{
		RuleID: rules.AccessControl,
		Details: models.Details{
			"revoked_count": len(revoked),
			"issue":         "High number of revoked access requests may indicate access control issues",
		},
		Recommendation: "Review access control policies and ensure revoked access is immediately enforced",
	}}, nil
}

// CheckAuditTrail flags requests recorded without any purpose.
func (e *Evaluator) CheckAuditTrail(ctx context.Context, orgID id.OrganizationID, _ time.Time) ([]models.Finding, error) {
	reqs, err := e.data.FetchRequests(ctx, orgID, nil)
	if err != nil {
		return nil, err
	}
	missing := 0
	for _, req := range reqs {
		if req.Purpose == nil {
			missing++
		}
	}
	if missing == 0 {
		return nil, nil
	}
	return []models.Finding{{
		RuleID: rules.AuditTrail,
		Details: models.Details{
			"missing_purpose_count": missing,
			"issue":                 "Some access requests lack purpose documentation",
		},
		Recommendation: "Ensure all access requests have clear purpose documented",
	}}, nil
}

// CheckRevocationHandling flags the same requests as CheckConsentValidity at
// critical severity with an immediate-action recommendation.
func (e *Evaluator) CheckRevocationHandling(ctx context.Context, orgID id.OrganizationID, _ time.Time) ([]models.Finding, error) {
	reqs, err := e.unconsentedRequests(ctx, orgID)
	if err != nil {
		return nil, err
	}
	findings := make([]models.Finding, 0, len(reqs))
	for _, req := range reqs {
		findings = append(findings, models.Finding{
			RuleID: rules.RevocationHandling,
			Details: models.Details{
				"access_request_id": req.ID.String(),
				"user_id":           req.UserID.String(),
				"consent_type":      req.ConsentTypeName,
				"issue":             "Access approved but consent is missing or revoked",
			},
			Recommendation: fmt.Sprintf("IMMEDIATELY revoke access request #%s", req.ID),
		})
	}
	return findings, nil
}

// CheckExcessiveRequests flags request volume above the 30-day threshold.
func (e *Evaluator) CheckExcessiveRequests(ctx context.Context, orgID id.OrganizationID, now time.Time) ([]models.Finding, error) {
	since := now.AddDate(0, 0, -excessiveWindowDays)
	recent, err := e.data.FetchRequestsSince(ctx, orgID, since)
	if err != nil {
		return nil, err
	}
	if len(recent) <= excessiveThreshold {
		return nil, nil
	}
	return []models.Finding{{
		RuleID: rules.ExcessiveRequests,
		Details: models.Details{
			"requests_count": len(recent),
			"period_days":    excessiveWindowDays,
			"issue":          "Unusually high number of data access requests",
		},
		Recommendation: "Review if all requests are necessary and legitimate",
	}}, nil
}
