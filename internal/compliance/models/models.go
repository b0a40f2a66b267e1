// Package models holds the compliance engine's records: the access data it
// reads and the audits and violation reports it materializes.
package models

import (
	"time"

	"truconn/internal/compliance/rules"
	id "truconn/pkg/domain"
	dErrors "truconn/pkg/domain-errors"
)

// RequestStatus is the lifecycle state of an access request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestDenied   RequestStatus = "DENIED"
	RequestRevoked  RequestStatus = "REVOKED"
)

// AccessRequest is an organization's request to read a user's data under a
// consent type. Owned by the request-management subsystem; read-only here.
type AccessRequest struct {
	ID              id.AccessRequestID
	OrgID           id.OrganizationID
	UserID          id.UserID
	ConsentTypeID   id.ConsentTypeID
	ConsentTypeName string
	// Purpose is nil when the request was recorded without one.
	Purpose     *string
	Status      RequestStatus
	RequestedAt time.Time
}

// PurposeText returns the stated purpose, or "" when absent.
func (r AccessRequest) PurposeText() string {
	if r.Purpose == nil {
		return ""
	}
	return *r.Purpose
}

// UserConsent is a user's grant or revocation for one consent type.
type UserConsent struct {
	UserID        id.UserID
	ConsentTypeID id.ConsentTypeID
	Access        bool
	GrantedAt     time.Time
	RevokedAt     *time.Time
	ExpiresAt     *time.Time
}

// AuditStatus is the operator-managed state of an audit.
type AuditStatus string

const (
	AuditPending   AuditStatus = "PENDING"
	AuditResolved  AuditStatus = "RESOLVED"
	AuditDismissed AuditStatus = "DISMISSED"
)

// ParseAuditStatus rejects anything outside the three known statuses.
func ParseAuditStatus(s string) (AuditStatus, error) {
	switch st := AuditStatus(s); st {
	case AuditPending, AuditResolved, AuditDismissed:
		return st, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidTransition, "invalid status value: "+s)
	}
}

// CanTransitionTo reports whether an operator may move an audit from s to next.
// Open audits may be resolved or dismissed; closed audits may only be reopened.
func (s AuditStatus) CanTransitionTo(next AuditStatus) bool {
	switch s {
	case AuditPending:
		return next == AuditResolved || next == AuditDismissed
	case AuditResolved, AuditDismissed:
		return next == AuditPending
	default:
		return false
	}
}

// Details is the free-form payload attached to findings and audits.
type Details map[string]any

// Audit is a durable record that a rule was violated for an organization.
type Audit struct {
	ID              id.AuditID        `json:"id"`
	OrgID           id.OrganizationID `json:"organization_id"`
	RuleID          rules.RuleID      `json:"rule_id"`
	RuleName        string            `json:"rule_name"`
	RuleDescription string            `json:"rule_description"`
	Severity        rules.Severity    `json:"severity"`
	Status          AuditStatus       `json:"status"`
	Details         Details           `json:"details"`
	Recommendation  string            `json:"recommendation"`
	DetectedAt      time.Time         `json:"detected_at"`
	ResolvedAt      *time.Time        `json:"resolved_at"`
}

// Transition applies an operator status change. RESOLVED stamps resolved_at;
// every other target clears it. The audit is untouched on error.
func (a *Audit) Transition(next AuditStatus, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot transition audit from "+string(a.Status)+" to "+string(next))
	}
	a.Status = next
	if next == AuditResolved {
		resolvedAt := now
		a.ResolvedAt = &resolvedAt
	} else {
		a.ResolvedAt = nil
	}
	return nil
}

// Violation is the escalation record opened for CRITICAL and HIGH audits.
type Violation struct {
	ID                 id.ViolationID    `json:"id"`
	OrgID              id.OrganizationID `json:"organization_id"`
	ViolationType      rules.RuleID      `json:"violation_type"`
	Description        string            `json:"description"`
	AffectedUsersCount int               `json:"affected_users_count"`
	ReportedToDPO      bool              `json:"reported_to_dpo"`
	Resolved           bool              `json:"resolved"`
	ResolutionNotes    string            `json:"resolution_notes"`
	RelatedAuditID     *id.AuditID       `json:"related_audit"`
	DetectedAt         time.Time         `json:"detected_at"`
}

// Finding is one rule-check hit before persistence.
type Finding struct {
	RuleID         rules.RuleID `json:"rule_id"`
	Details        Details      `json:"details"`
	Recommendation string       `json:"recommendation"`
}

// ReferencesUser reports whether the finding points at a specific user.
func (f Finding) ReferencesUser() bool {
	v, ok := f.Details["user_id"]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// ScanResult is the evaluator output for one organization.
type ScanResult struct {
	Violations      []Finding `json:"violations"`
	RiskScore       int       `json:"risk_score"`
	TotalViolations int       `json:"total_violations"`
	CriticalCount   int       `json:"critical_count"`
	HighCount       int       `json:"high_count"`
	MediumCount     int       `json:"medium_count"`
	LowCount        int       `json:"low_count"`
}

// Report is what a scan or a latest-view returns to callers.
type Report struct {
	RiskScore       int         `json:"risk_score"`
	RiskLevel       string      `json:"risk_level"`
	TotalViolations int         `json:"total_violations"`
	CriticalCount   int         `json:"critical_count"`
	HighCount       int         `json:"high_count"`
	MediumCount     int         `json:"medium_count"`
	Audits          []Audit     `json:"audits"`
	Violations      []Violation `json:"violations"`
}

// Statistics summarizes an organization's compliance records.
type Statistics struct {
	TotalAudits          int `json:"total_audits"`
	PendingAudits        int `json:"pending_audits"`
	ResolvedAudits       int `json:"resolved_audits"`
	UnresolvedViolations int `json:"unresolved_violations"`
}

// OrganizationSummary identifies the organization a summary report covers.
type OrganizationSummary struct {
	ID   id.OrganizationID `json:"id"`
	Name string            `json:"name"`
}

// OrganizationReport is the compliance overview for one organization.
type OrganizationReport struct {
	Organization OrganizationSummary `json:"organization"`
	Statistics   Statistics          `json:"statistics"`
	Audits       []Audit             `json:"audits"`
	Violations   []Violation         `json:"violations"`
}

// AuditFilter narrows audit listings. Zero values mean "no constraint".
type AuditFilter struct {
	Since  time.Time
	Status AuditStatus
	Limit  int
}

// ViolationFilter narrows violation listings.
type ViolationFilter struct {
	Since          time.Time
	UnresolvedOnly bool
	Limit          int
}
