package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/sigil"
)

// Migrate creates the credential table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables sigil.Tables) error {
	if err := createCredentialsTable(ctx, pool, tables.Credentials); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func createCredentialsTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	indexActive := pgx.Identifier{fmt.Sprintf("idx_%s_active", tableName)}.Sanitize()

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			access_key_id TEXT NOT NULL UNIQUE,
			secret_access_key TEXT NOT NULL,
			session_token TEXT NOT NULL DEFAULT '',
			principal_identifier TEXT NOT NULL,
			account_or_tenant_id TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (access_key_id)
		WHERE (active);
	`,
		quotedTable,
		indexActive, quotedTable,
	)

	_, err := pool.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("create credentials table: %w", err)
	}
	return nil
}

// DropTables removes the credential table. Intended for tests.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables sigil.Tables) error {
	quotedTable := pgx.Identifier{tables.Credentials}.Sanitize()

	_, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quotedTable))
	if err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return nil
}
