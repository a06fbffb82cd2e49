package directory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"teamsync/internal/db"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewPostgresStore(&db.DB{DB: conn}), mock
}

func memberRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "external_id", "email", "name", "role",
		"is_active", "created_at", "updated_at",
	})
}

func TestFindByExternalID(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT .+ FROM members.+AND external_id = \$2`).
		WithArgs("org-1", "E1").
		WillReturnRows(memberRows().
			AddRow("m1", "org-1", "E1", "one@x.com", "One", "member", true, now, now))

	m, err := store.FindByExternalID(context.Background(), "org-1", "E1")
	if err != nil {
		t.Fatalf("FindByExternalID: %v", err)
	}
	if m.ID != "m1" || m.ExternalID != "E1" || !m.IsActive {
		t.Errorf("unexpected member: %+v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByExternalIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM members`).
		WithArgs("org-1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByExternalID(context.Background(), "org-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`LOWER\(email\) = LOWER\(\$2\)`).
		WithArgs("org-1", "One@X.com").
		WillReturnRows(memberRows().
			AddRow("m1", "org-1", "E1", "one@x.com", "One", "member", true, now, now))

	m, err := store.FindByEmail(context.Background(), "org-1", "One@X.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if m.Email != "one@x.com" {
		t.Errorf("unexpected member: %+v", m)
	}
}

func TestCreateMemberDefaultsRole(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO members`).
		WithArgs("org-1", "E1", "one@x.com", "One", DefaultRole, true, "hashed").
		WillReturnRows(memberRows().
			AddRow("m1", "org-1", "E1", "one@x.com", "One", DefaultRole, true, now, now))

	created, err := store.CreateMember(context.Background(), Member{
		OrganizationID: "org-1",
		ExternalID:     "E1",
		Email:          "one@x.com",
		Name:           "One",
		IsActive:       true,
	}, "hashed")
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	if created.ID != "m1" || created.Role != DefaultRole {
		t.Errorf("unexpected member: %+v", created)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateMember(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE members`).
		WithArgs("m1", "E1", "New Name", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateMember(context.Background(), Member{
		ID:         "m1",
		ExternalID: "E1",
		Name:       "New Name",
		IsActive:   false,
	})
	if err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
}

func TestUpdateMemberNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE members`).
		WithArgs("gone", "", "", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateMember(context.Background(), Member{ID: "gone"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestEnsureOrganizationUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)INSERT INTO organizations.+ON CONFLICT \(slug\)`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at", "updated_at"}).
			AddRow("org-1", "acme", "", now, now))

	org, err := store.EnsureOrganization(context.Background(), "acme")
	if err != nil {
		t.Fatalf("EnsureOrganization: %v", err)
	}
	if org.ID != "org-1" || org.Slug != "acme" {
		t.Errorf("unexpected organization: %+v", org)
	}
}

func TestListMembers(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT .+ FROM members.+WHERE organization_id = \$1`).
		WithArgs("org-1").
		WillReturnRows(memberRows().
			AddRow("m1", "org-1", "E1", "one@x.com", "One", "member", true, now, now).
			AddRow("m2", "org-1", "", "two@x.com", "Two", "member", false, now, now))

	members, err := store.ListMembers(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("want 2 members, got %d", len(members))
	}
	if members[1].ExternalID != "" {
		t.Errorf("null external_id must scan as empty string, got %q", members[1].ExternalID)
	}
}
