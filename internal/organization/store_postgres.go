package organization

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "truconn/pkg/domain"
	"truconn/pkg/platform/sentinel"
)

// PostgresStore reads the organizations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, org *Organization) error {
	query := `
		INSERT INTO organizations (id, name, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, owner_id = EXCLUDED.owner_id
	`
	_, err := s.db.ExecContext(ctx, query, uuid.UUID(org.ID), org.Name, uuid.UUID(org.OwnerID), org.CreatedAt)
	if err != nil {
		return fmt.Errorf("save organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrganizationID) (*Organization, error) {
	query := `SELECT id, name, owner_id, created_at FROM organizations WHERE id = $1`
	return s.findOne(ctx, query, uuid.UUID(orgID))
}

func (s *PostgresStore) FindByOwner(ctx context.Context, ownerID id.UserID) (*Organization, error) {
	query := `SELECT id, name, owner_id, created_at FROM organizations WHERE owner_id = $1 ORDER BY created_at LIMIT 1`
	return s.findOne(ctx, query, uuid.UUID(ownerID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*Organization, error) {
	var (
		org          Organization
		orgID, owner uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&orgID, &org.Name, &owner, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find organization: %w", err)
	}
	org.ID = id.OrganizationID(orgID)
	org.OwnerID = id.UserID(owner)
	return &org, nil
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]id.OrganizationID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var ids []id.OrganizationID
	for rows.Next() {
		var v uuid.UUID
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		ids = append(ids, id.OrganizationID(v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return ids, nil
}
