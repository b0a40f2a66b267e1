package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"truconn/internal/compliance/models"
	"truconn/internal/compliance/rules"
	id "truconn/pkg/domain"
	"truconn/pkg/platform/sentinel"
	txcontext "truconn/pkg/platform/tx"
)

// pqForeignKeyViolation is SQLSTATE 23503.
const pqForeignKeyViolation = "23503"

// PostgresStore persists audits and violation reports in PostgreSQL. Queries
// run on the transaction carried by ctx when there is one.
type PostgresStore struct {
	db     *sql.DB
	window time.Duration
}

// NewPostgres constructs a PostgreSQL-backed compliance store. window must
// match the service's dedup window so the bucket backstop lines up with it.
func NewPostgres(db *sql.DB, window time.Duration) *PostgresStore {
	return &PostgresStore{db: db, window: window}
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

const auditColumns = `id, organization_id, rule_id, rule_name, rule_description, severity,
	status, details, recommendation, detected_at, resolved_at`

const violationColumns = `id, organization_id, violation_type, description, affected_users_count,
	reported_to_dpo, resolved, resolution_notes, related_audit_id, detected_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(row rowScanner) (*models.Audit, error) {
	var (
		a          models.Audit
		auditID    uuid.UUID
		orgID      uuid.UUID
		ruleID     string
		severity   string
		status     string
		details    []byte
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&auditID, &orgID, &ruleID, &a.RuleName, &a.RuleDescription, &severity,
		&status, &details, &a.Recommendation, &a.DetectedAt, &resolvedAt); err != nil {
		return nil, err
	}
	a.ID = id.AuditID(auditID)
	a.OrgID = id.OrganizationID(orgID)
	a.RuleID = rules.RuleID(ruleID)
	a.Severity = rules.Severity(severity)
	a.Status = models.AuditStatus(status)
	a.Details = models.Details{}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func scanViolation(row rowScanner) (*models.Violation, error) {
	var (
		v           models.Violation
		violationID uuid.UUID
		orgID       uuid.UUID
		vType       string
		related     uuid.NullUUID
	)
	if err := row.Scan(&violationID, &orgID, &vType, &v.Description, &v.AffectedUsersCount,
		&v.ReportedToDPO, &v.Resolved, &v.ResolutionNotes, &related, &v.DetectedAt); err != nil {
		return nil, err
	}
	v.ID = id.ViolationID(violationID)
	v.OrgID = id.OrganizationID(orgID)
	v.ViolationType = rules.RuleID(vType)
	if related.Valid {
		auditID := id.AuditID(related.UUID)
		v.RelatedAuditID = &auditID
	}
	return &v, nil
}

func (s *PostgresStore) FindAuditSince(ctx context.Context, orgID id.OrganizationID, ruleID rules.RuleID, since time.Time) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + `
		FROM compliance_audits
		WHERE organization_id = $1 AND rule_id = $2 AND detected_at >= $3
		ORDER BY detected_at DESC
		LIMIT 1`
	a, err := scanAudit(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(orgID), string(ruleID), since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find audit since: %w", err)
	}
	return a, nil
}

// InsertAudit writes a new audit. A row already holding the same
// (organization, rule, dedup bucket) yields sentinel.ErrDuplicate without
// aborting the surrounding transaction.
func (s *PostgresStore) InsertAudit(ctx context.Context, a *models.Audit) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	if a.Details == nil {
		details = []byte("{}")
	}
	var resolvedAt sql.NullTime
	if a.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *a.ResolvedAt, Valid: true}
	}

	query := `
		INSERT INTO compliance_audits (` + auditColumns + `, dedup_bucket)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (organization_id, rule_id, dedup_bucket) DO NOTHING
		RETURNING id`
	var inserted uuid.UUID
	err = s.exec(ctx).QueryRowContext(ctx, query,
		uuid.UUID(a.ID),
		uuid.UUID(a.OrgID),
		string(a.RuleID),
		a.RuleName,
		a.RuleDescription,
		string(a.Severity),
		string(a.Status),
		details,
		a.Recommendation,
		a.DetectedAt,
		resolvedAt,
		DedupBucket(a.DetectedAt, s.window),
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrDuplicate
		}
		return mapWriteError("insert audit", err)
	}
	return nil
}

func (s *PostgresStore) FindAuditByID(ctx context.Context, auditID id.AuditID) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM compliance_audits WHERE id = $1`
	a, err := scanAudit(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(auditID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find audit by id: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAuditStatus(ctx context.Context, a *models.Audit) error {
	var resolvedAt sql.NullTime
	if a.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *a.ResolvedAt, Valid: true}
	}
	query := `UPDATE compliance_audits SET status = $2, resolved_at = $3 WHERE id = $1`
	res, err := s.exec(ctx).ExecContext(ctx, query, uuid.UUID(a.ID), string(a.Status), resolvedAt)
	if err != nil {
		return mapWriteError("update audit status", err)
	}
	return requireAffected(res, "update audit status")
}

func (s *PostgresStore) ListAudits(ctx context.Context, orgID id.OrganizationID, filter models.AuditFilter) ([]models.Audit, error) {
	var b filterBuilder
	b.add("organization_id = ?", uuid.UUID(orgID))
	if !filter.Since.IsZero() {
		b.add("detected_at >= ?", filter.Since)
	}
	if filter.Status != "" {
		b.add("status = ?", string(filter.Status))
	}
	query := `SELECT ` + auditColumns + ` FROM compliance_audits WHERE ` + b.where() +
		` ORDER BY detected_at DESC, id` + b.limit(filter.Limit)

	rows, err := s.exec(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []models.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audits: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindViolationSince(ctx context.Context, orgID id.OrganizationID, ruleID rules.RuleID, since time.Time) (*models.Violation, error) {
	query := `SELECT ` + violationColumns + `
		FROM violation_reports
		WHERE organization_id = $1 AND violation_type = $2 AND detected_at >= $3
		ORDER BY detected_at DESC
		LIMIT 1`
	v, err := scanViolation(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(orgID), string(ruleID), since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find violation since: %w", err)
	}
	return v, nil
}

// InsertViolation writes a new violation report. The related audit must
// belong to the same organization; otherwise sentinel.ErrInvalidState.
func (s *PostgresStore) InsertViolation(ctx context.Context, v *models.Violation) error {
	var related uuid.NullUUID
	if v.RelatedAuditID != nil {
		related = uuid.NullUUID{UUID: uuid.UUID(*v.RelatedAuditID), Valid: true}
	}
	query := `
		INSERT INTO violation_reports (` + violationColumns + `, dedup_bucket)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (organization_id, violation_type, dedup_bucket) DO NOTHING
		RETURNING id`
	var inserted uuid.UUID
	err := s.exec(ctx).QueryRowContext(ctx, query,
		uuid.UUID(v.ID),
		uuid.UUID(v.OrgID),
		string(v.ViolationType),
		v.Description,
		v.AffectedUsersCount,
		v.ReportedToDPO,
		v.Resolved,
		v.ResolutionNotes,
		related,
		v.DetectedAt,
		DedupBucket(v.DetectedAt, s.window),
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrDuplicate
		}
		return mapWriteError("insert violation", err)
	}
	return nil
}

func (s *PostgresStore) FindViolationByID(ctx context.Context, violationID id.ViolationID) (*models.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violation_reports WHERE id = $1`
	v, err := scanViolation(s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(violationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find violation by id: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) UpdateViolationResolution(ctx context.Context, v *models.Violation) error {
	query := `UPDATE violation_reports SET resolved = $2, resolution_notes = $3 WHERE id = $1`
	res, err := s.exec(ctx).ExecContext(ctx, query, uuid.UUID(v.ID), v.Resolved, v.ResolutionNotes)
	if err != nil {
		return mapWriteError("update violation", err)
	}
	return requireAffected(res, "update violation")
}

func (s *PostgresStore) ListViolations(ctx context.Context, orgID id.OrganizationID, filter models.ViolationFilter) ([]models.Violation, error) {
	var b filterBuilder
	b.add("organization_id = ?", uuid.UUID(orgID))
	if !filter.Since.IsZero() {
		b.add("detected_at >= ?", filter.Since)
	}
	if filter.UnresolvedOnly {
		b.add("resolved = ?", false)
	}
	query := `SELECT ` + violationColumns + ` FROM violation_reports WHERE ` + b.where() +
		` ORDER BY detected_at DESC, id` + b.limit(filter.Limit)

	rows, err := s.exec(ctx).QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var out []models.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

// filterBuilder numbers "?" placeholders as it collects conditions.
type filterBuilder struct {
	conds []string
	args  []any
}

func (b *filterBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(b.args)), 1))
}

func (b *filterBuilder) where() string {
	return strings.Join(b.conds, " AND ")
}

func (b *filterBuilder) limit(n int) string {
	if n <= 0 {
		return ""
	}
	b.args = append(b.args, n)
	return fmt.Sprintf(" LIMIT $%d", len(b.args))
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrInvalidState)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
