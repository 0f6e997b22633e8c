// Package postgres implements the credential store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/sigil"
)

// Tables is an alias for sigil.Tables for package compatibility.
type Tables = sigil.Tables

type Store struct {
	pool      *pgxpool.Pool
	tableName string
}

func NewStore(pool *pgxpool.Pool, tables Tables) (*Store, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	return &Store{pool: pool, tableName: tables.Credentials}, nil
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Resolve implements sigil.CredentialResolver. Inactive keys resolve the
// same as absent ones.
func (s *Store) Resolve(ctx context.Context, accessKeyID string, _ sigil.SigningScope) (sigil.Credential, sigil.Principal, error) {
	// Empty and oversized ids cannot match a row; skip the round trip.
	if accessKeyID == "" || len(accessKeyID) > 128 {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("resolve key: %w", sigil.ErrUnknownAccessKey)
	}

	query := fmt.Sprintf(`
		SELECT secret_access_key, session_token, principal_identifier, account_or_tenant_id
		FROM %s
		WHERE access_key_id = $1 AND active
	`, s.tableName)

	var secret, token, principal, account string
	err := s.pool.QueryRow(ctx, query, accessKeyID).Scan(&secret, &token, &principal, &account)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("resolve key: %w", sigil.ErrUnknownAccessKey)
		}
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("resolve key: %v: %w", err, sigil.ErrStoreUnavailable)
	}

	cred := sigil.Credential{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secret,
		SessionToken:    token,
	}
	return cred, rowPrincipal(principal, account), nil
}

// rowPrincipal builds the principal for a stored row, deriving the
// aws:PrincipalAccount and aws:PrincipalArn attributes when the row carries
// them.
func rowPrincipal(principal, account string) sigil.Principal {
	attrs := map[string]string{}
	if account != "" {
		attrs["aws:PrincipalAccount"] = account
	}
	if strings.HasPrefix(principal, "arn:") {
		attrs["aws:PrincipalArn"] = principal
	}
	return sigil.NewPrincipal(principal, account, attrs)
}

func (s *Store) CreateKey(ctx context.Context, record sigil.KeyRecord) (sigil.KeyRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (access_key_id, secret_access_key, session_token, principal_identifier, account_or_tenant_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (access_key_id) DO NOTHING
		RETURNING id, active, created_at, updated_at
	`, s.tableName)

	out := record
	if out.Principal == "" {
		out.Principal = record.AccessKeyID
	}

	err := s.pool.QueryRow(ctx, query,
		out.AccessKeyID, out.SecretAccessKey, out.SessionToken, out.Principal, out.Account,
	).Scan(&out.ID, &out.Active, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sigil.KeyRecord{}, fmt.Errorf("create key: %w", sigil.ErrKeyExists)
		}
		return sigil.KeyRecord{}, fmt.Errorf("create key: %w", err)
	}

	return out, nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]sigil.KeyRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, access_key_id, principal_identifier, account_or_tenant_id, active, created_at, updated_at
		FROM %s
		WHERE access_key_id LIKE $1 || '%%'
		ORDER BY created_at, access_key_id
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, sigil.EscapeLikePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	records := []sigil.KeyRecord{}
	for rows.Next() {
		var r sigil.KeyRecord
		if err := rows.Scan(&r.ID, &r.AccessKeyID, &r.Principal, &r.Account, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list keys: scan: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: rows: %w", err)
	}

	return records, nil
}

func (s *Store) DeactivateKey(ctx context.Context, accessKeyID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET active = FALSE, updated_at = NOW()
		WHERE access_key_id = $1 AND active
	`, s.tableName)

	result, err := s.pool.Exec(ctx, query, accessKeyID)
	if err != nil {
		return fmt.Errorf("deactivate key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("deactivate key: %w", sigil.ErrKeyNotFound)
	}

	return nil
}
