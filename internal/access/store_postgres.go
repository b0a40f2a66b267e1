package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"truconn/internal/compliance/models"
	id "truconn/pkg/domain"
)

// PostgresStore reads access requests and consents from the shared database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectRequests = `
	SELECT r.id, r.organization_id, r.user_id, r.consent_type_id, COALESCE(ct.name, ''),
	       r.purpose, r.status, r.requested_at
	FROM access_requests r
	LEFT JOIN consent_types ct ON ct.id = r.consent_type_id
`

func (s *PostgresStore) FetchRequests(ctx context.Context, orgID id.OrganizationID, status *models.RequestStatus) ([]models.AccessRequest, error) {
	query := selectRequests + ` WHERE r.organization_id = $1`
	args := []any{uuid.UUID(orgID)}
	if status != nil {
		query += ` AND r.status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY r.requested_at, r.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *PostgresStore) FetchRequestsSince(ctx context.Context, orgID id.OrganizationID, since time.Time) ([]models.AccessRequest, error) {
	query := selectRequests + `
		WHERE r.organization_id = $1 AND r.requested_at >= $2
		ORDER BY r.requested_at, r.id`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(orgID), since)
	if err != nil {
		return nil, fmt.Errorf("query recent access requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// FetchConsent prefers the active row for (user, consent type), then the most
// recently granted one.
func (s *PostgresStore) FetchConsent(ctx context.Context, userID id.UserID, consentTypeID id.ConsentTypeID) (*models.UserConsent, error) {
	query := `
		SELECT user_id, consent_type_id, access, granted_at, revoked_at, expires_at
		FROM user_consents
		WHERE user_id = $1 AND consent_type_id = $2
		ORDER BY (access AND (expires_at IS NULL OR expires_at > NOW())) DESC, granted_at DESC
		LIMIT 1
	`
	var (
		c           models.UserConsent
		user, ctype uuid.UUID
		revokedAt   sql.NullTime
		expiresAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(userID), uuid.UUID(consentTypeID)).
		Scan(&user, &ctype, &c.Access, &c.GrantedAt, &revokedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user consent: %w", err)
	}
	c.UserID = id.UserID(user)
	c.ConsentTypeID = id.ConsentTypeID(ctype)
	if revokedAt.Valid {
		c.RevokedAt = &revokedAt.Time
	}
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}
	return &c, nil
}

func scanRequests(rows *sql.Rows) ([]models.AccessRequest, error) {
	var out []models.AccessRequest
	for rows.Next() {
		var (
			req                     models.AccessRequest
			reqID, org, user, ctype uuid.UUID
			purpose                 sql.NullString
			status                  string
		)
		if err := rows.Scan(&reqID, &org, &user, &ctype, &req.ConsentTypeName, &purpose, &status, &req.RequestedAt); err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		req.ID = id.AccessRequestID(reqID)
		req.OrgID = id.OrganizationID(org)
		req.UserID = id.UserID(user)
		req.ConsentTypeID = id.ConsentTypeID(ctype)
		req.Status = models.RequestStatus(status)
		if purpose.Valid {
			p := purpose.String
			req.Purpose = &p
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access requests: %w", err)
	}
	return out, nil
}
