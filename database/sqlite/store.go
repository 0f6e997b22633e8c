// Package sqlite implements the credential store using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sagarc03/sigil"
)

// timeFormat is RFC 3339 with a fixed-width fraction, so the TEXT
// created_at column sorts chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db        *sql.DB
	tableName string
}

func NewStore(db *sql.DB, tables sigil.Tables) (*Store, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	return &Store{db: db, tableName: tables.Credentials}, nil
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Resolve implements sigil.CredentialResolver. Inactive keys resolve the
// same as absent ones.
func (s *Store) Resolve(ctx context.Context, accessKeyID string, _ sigil.SigningScope) (sigil.Credential, sigil.Principal, error) {
	// Empty and oversized ids cannot match a row; skip the query.
	if accessKeyID == "" || len(accessKeyID) > 128 {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("resolve key: %w", sigil.ErrUnknownAccessKey)
	}

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT secret_access_key, session_token, principal_identifier, account_or_tenant_id
		FROM %s
		WHERE access_key_id = ? AND active = 1`, s.tableName)

	var secret, token, principal, account string
	err := s.db.QueryRowContext(ctx, query, accessKeyID).Scan(&secret, &token, &principal, &account)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	// Check for an existing row first; SQLite has no RETURNING-on-conflict.
	var existingID string
	checkQuery := fmt.Sprintf(`SELECT id FROM %s WHERE access_key_id = ?`, s.tableName) //nolint:gosec // table name is validated
	err := s.db.QueryRowContext(ctx, checkQuery, record.AccessKeyID).Scan(&existingID)
	if err == nil {
		return sigil.KeyRecord{}, fmt.Errorf("create key: %w", sigil.ErrKeyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return sigil.KeyRecord{}, fmt.Errorf("create key: check existing: %w", err)
	}

	now := time.Now().UTC()
	out := record
	out.ID = uuid.New()
	if out.Principal == "" {
		out.Principal = record.AccessKeyID
	}
	out.Active = true
	out.CreatedAt = now
	out.UpdatedAt = now

	insertQuery := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, access_key_id, secret_access_key, session_token, principal_identifier, account_or_tenant_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tableName)

	_, err = s.db.ExecContext(ctx, insertQuery,
		out.ID.String(), out.AccessKeyID, out.SecretAccessKey, out.SessionToken,
		out.Principal, out.Account, true,
		now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return sigil.KeyRecord{}, fmt.Errorf("create key: insert: %w", err)
	}

	return out, nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]sigil.KeyRecord, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT id, access_key_id, principal_identifier, account_or_tenant_id, active, created_at, updated_at
		FROM %s
		WHERE access_key_id LIKE ? || '%%' ESCAPE '\'
		ORDER BY created_at, access_key_id`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, sigil.EscapeLikePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []sigil.KeyRecord{}
	for rows.Next() {
		var r sigil.KeyRecord
		var idStr, createdAt, updatedAt string

		if err := rows.Scan(&idStr, &r.AccessKeyID, &r.Principal, &r.Account, &r.Active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("list keys: scan: %w", err)
		}

		r.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("list keys: parse uuid: %w", err)
		}

		r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("list keys: parse created_at: %w", err)
		}

		r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("list keys: parse updated_at: %w", err)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: rows: %w", err)
	}

	return records, nil
}

func (s *Store) DeactivateKey(ctx context.Context, accessKeyID string) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET active = 0, updated_at = ?
		WHERE access_key_id = ? AND active = 1`, s.tableName)

	result, err := s.db.ExecContext(ctx, query,
		time.Now().UTC().Format(timeFormat), accessKeyID)
	if err != nil {
		return fmt.Errorf("deactivate key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate key: rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("deactivate key: %w", sigil.ErrKeyNotFound)
	}

	return nil
}
