package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/sigil"
	"github.com/sagarc03/sigil/database/postgres"
	"github.com/sagarc03/sigil/database/sqlite"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config holds the configuration for connecting to a credential backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string
	// DSN is the data source name (connection string)
	DSN string
	// Tables holds the credential table name
	Tables sigil.Tables
}

// Connect establishes a connection to the configured database backend,
// runs migrations, validates the schema, and returns a CredentialStore.
// The returned cleanup function should be called to close the connection.
func Connect(ctx context.Context, cfg Config) (sigil.CredentialStore, func(), error) {
	tables := cfg.Tables
	if err := tables.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Type {
	case "sqlite":
		return connectSQLite(ctx, cfg.DSN, tables)
	case "postgres":
		return connectPostgres(ctx, cfg.DSN, tables)
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func connectSQLite(ctx context.Context, dsn string, tables sigil.Tables) (sigil.CredentialStore, func(), error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// every statement sees the same tables.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err = sqlite.Migrate(ctx, db, tables); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	if err = sqlite.ValidateSchema(ctx, db, tables); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("validate sqlite schema: %w", err)
	}

	store, err := sqlite.NewStore(db, tables)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create sqlite store: %w", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return store, cleanup, nil
}

func connectPostgres(ctx context.Context, dsn string, tables sigil.Tables) (sigil.CredentialStore, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err = postgres.Migrate(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	if err = postgres.ValidateSchema(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("validate postgres schema: %w", err)
	}

	store, err := postgres.NewStore(pool, tables)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create postgres store: %w", err)
	}

	return store, pool.Close, nil
}
