package db

import (
	"context"
	"database/sql"
)

type DB struct {
	*sql.DB
}

const directoryMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS organizations (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    slug text NOT NULL,
    name text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT organizations_slug_unique UNIQUE (slug)
);

CREATE TABLE IF NOT EXISTS members (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id uuid NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    external_id text,
    email text NOT NULL,
    name text NOT NULL DEFAULT '',
    role text NOT NULL DEFAULT 'member',
    is_active boolean NOT NULL DEFAULT true,
    setup_token_hash text,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS members_org_external_unique
ON members (organization_id, external_id)
WHERE external_id IS NOT NULL;

CREATE UNIQUE INDEX IF NOT EXISTS members_org_email_lower_unique
ON members (organization_id, LOWER(email));

CREATE INDEX IF NOT EXISTS members_org_active_idx
ON members (organization_id, is_active);
`

func RunDirectoryMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, directoryMigration)
	return err
}
