package service

import (
	"context"
	"time"

	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	"truconn/internal/organization"
	id "truconn/pkg/domain"
	audit "truconn/pkg/platform/audit"
)

// Store persists audits and violation reports. Finders return
// sentinel.ErrNotFound when nothing matches; inserts return
// sentinel.ErrDuplicate when the (organization, rule, dedup bucket) backstop
// already holds a row.
type Store interface {
	FindAuditSince(ctx context.Context, orgID id.OrganizationID, ruleID rules.RuleID, since time.Time) (*models.Audit, error)
	InsertAudit(ctx context.Context, a *models.Audit) error
	FindAuditByID(ctx context.Context, auditID id.AuditID) (*models.Audit, error)
	UpdateAuditStatus(ctx context.Context, a *models.Audit) error
	// ListAudits returns audits newest first.
	ListAudits(ctx context.Context, orgID id.OrganizationID, filter models.AuditFilter) ([]models.Audit, error)

	FindViolationSince(ctx context.Context, orgID id.OrganizationID, ruleID rules.RuleID, since time.Time) (*models.Violation, error)
	InsertViolation(ctx context.Context, v *models.Violation) error
	FindViolationByID(ctx context.Context, violationID id.ViolationID) (*models.Violation, error)
	UpdateViolationResolution(ctx context.Context, v *models.Violation) error
	// ListViolations returns violations newest first.
	ListViolations(ctx context.Context, orgID id.OrganizationID, filter models.ViolationFilter) ([]models.Violation, error)
}

// OrganizationDirectory resolves organizations and their owners.
type OrganizationDirectory interface {
	FindByID(ctx context.Context, orgID id.OrganizationID) (*organization.Organization, error)
	FindByOwner(ctx context.Context, ownerID id.UserID) (*organization.Organization, error)
}

// Evaluator runs the rule checks.
type Evaluator interface {
	RunAllChecks(ctx context.Context, orgID id.OrganizationID) (*models.ScanResult, error)
	Catalog() *rules.Catalog
}

// EventPublisher records compliance events. Emit runs inside the scan
// transaction; an error aborts it.
type EventPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ReportCache caches Latest reports. Misses return (nil, nil).
//
// Every Invalidate advances the organization's generation. Set stores the
// report only while the generation still equals gen, so a report built from
// reads that raced a write is dropped instead of cached.
type ReportCache interface {
	Get(ctx context.Context, orgID id.OrganizationID, windowDays int) (*models.Report, error)
	Generation(ctx context.Context, orgID id.OrganizationID) (int64, error)
	Set(ctx context.Context, orgID id.OrganizationID, windowDays int, gen int64, report *models.Report) error
	Invalidate(ctx context.Context, orgID id.OrganizationID) error
}
