package directory

import (
	"context"
	"database/sql"
	"errors"

	"teamsync/internal/db"
)

var ErrNotFound = errors.New("directory: record not found")

// Store is the directory persistence boundary. Lookups return
// ErrNotFound rather than nil records.
type Store interface {
	EnsureOrganization(ctx context.Context, slug string) (*Organization, error)
	FindOrganization(ctx context.Context, slug string) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	FindByExternalID(ctx context.Context, orgID, externalID string) (*Member, error)
	FindByEmail(ctx context.Context, orgID, email string) (*Member, error)
	CreateMember(ctx context.Context, m Member, setupTokenHash string) (*Member, error)
	UpdateMember(ctx context.Context, m Member) error
}

// PostgresStore is the canonical directory store.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const memberColumns = `
	id, organization_id, COALESCE(external_id, ''), email, name, role,
	is_active, created_at, updated_at
`

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	var m Member
	err := row.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.ExternalID,
		&m.Email,
		&m.Name,
		&m.Role,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) EnsureOrganization(ctx context.Context, slug string) (*Organization, error) {
	var org Organization

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (slug)
		VALUES ($1)
		ON CONFLICT (slug) DO UPDATE SET updated_at = NOW()
		RETURNING id, slug, name, created_at, updated_at
	`, slug).Scan(&org.ID, &org.Slug, &org.Name, &org.CreatedAt, &org.UpdatedAt)

	if err != nil {
		return nil, err
	}

	return &org, nil
}

// FindOrganization is the read-only lookup used by the login path,
// which must not create directory rows.
func (s *PostgresStore) FindOrganization(ctx context.Context, slug string) (*Organization, error) {
	var org Organization

	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`, slug).Scan(&org.ID, &org.Slug, &org.Name, &org.CreatedAt, &org.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &org, nil
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, name, created_at, updated_at
		FROM organizations
		ORDER BY slug
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Slug, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

func (s *PostgresStore) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE organization_id = $1
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}

	return members, rows.Err()
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, orgID, externalID string) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE organization_id = $1
		  AND external_id = $2
	`, orgID, externalID)

	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, orgID, email string) (*Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE organization_id = $1
		  AND LOWER(email) = LOWER($2)
	`, orgID, email)

	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMember inserts a new record with no credential material beyond
// the setup-token hash. The unique indexes on (org, external_id) and
// (org, lower(email)) back the no-duplicates invariant.
func (s *PostgresStore) CreateMember(ctx context.Context, m Member, setupTokenHash string) (*Member, error) {
	role := m.Role
	if role == "" {
		role = DefaultRole
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO members (organization_id, external_id, email, name, role, is_active, setup_token_hash)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING `+memberColumns+`
	`,
		m.OrganizationID,
		m.ExternalID,
		m.Email,
		m.Name,
		role,
		m.IsActive,
		setupTokenHash,
	)

	created, err := scanMember(row)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateMember writes the mutable fields of an existing record.
func (s *PostgresStore) UpdateMember(ctx context.Context, m Member) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET external_id = NULLIF($2, ''),
		    name = $3,
		    is_active = $4,
		    updated_at = NOW()
		WHERE id = $1
	`,
		m.ID,
		m.ExternalID,
		m.Name,
		m.IsActive,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
