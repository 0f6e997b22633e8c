package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sagarc03/sigil"
)

type columnInfo struct {
	name       string
	dataType   string
	isNullable bool
}

var credentialsTableSchema = map[string]columnInfo{
	"id":                   {"id", "text", false},
	"access_key_id":        {"access_key_id", "text", false},
	"secret_access_key":    {"secret_access_key", "text", false},
	"session_token":        {"session_token", "text", false},
	"principal_identifier": {"principal_identifier", "text", false},
	"account_or_tenant_id": {"account_or_tenant_id", "text", false},
	"active":               {"active", "integer", false},
	"created_at":           {"created_at", "text", false},
	"updated_at":           {"updated_at", "text", false},
}

// ValidateSchema checks that the credential table exists and its columns
// match the expected types and nullability.
func ValidateSchema(ctx context.Context, db *sql.DB, tables sigil.Tables) error {
	if err := validateTableSchema(ctx, db, tables.Credentials, credentialsTableSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tables.Credentials, err)
	}
	return nil
}

func validateTableSchema(ctx context.Context, db *sql.DB, tableName string, expectedSchema map[string]columnInfo) error {
	if !sigil.IsValidTableName(tableName) {
		return fmt.Errorf("validate table schema: invalid table name: %s", tableName)
	}

	exists, err := tableExists(ctx, db, tableName)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate table schema: table %s does not exist", tableName)
	}

	// SQLite uses PRAGMA table_info to get column information
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(tableName))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("validate table schema: query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actualColumns := make(map[string]columnInfo)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var dfltValue sql.NullString
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("validate table schema: scan column: %w", err)
		}
		actualColumns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: notNull == 0,
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("validate table schema: rows error: %w", err)
	}

	return diffSchema(tableName, expectedSchema, actualColumns)
}

func diffSchema(tableName string, expected, actual map[string]columnInfo) error {
	var missingColumns []string
	var mismatchedColumns []string

	for colName, want := range expected {
		got, exists := actual[colName]
		if !exists {
			missingColumns = append(missingColumns, colName)
			continue
		}

		if got.dataType != want.dataType {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected %s, got %s", colName, want.dataType, got.dataType))
		}

		if got.isNullable != want.isNullable {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", colName, want.isNullable, got.isNullable))
		}
	}

	if len(missingColumns) > 0 || len(mismatchedColumns) > 0 {
		var errMsg strings.Builder
		fmt.Fprintf(&errMsg, "table %s schema validation failed:\n", tableName)

		if len(missingColumns) > 0 {
			fmt.Fprintf(&errMsg, "  missing columns: %s\n", strings.Join(missingColumns, ", "))
		}

		if len(mismatchedColumns) > 0 {
			fmt.Fprintf(&errMsg, "  mismatched columns:\n")
			for _, msg := range mismatchedColumns {
				fmt.Fprintf(&errMsg, "    - %s\n", msg)
			}
		}

		return errors.New(errMsg.String())
	}

	return nil
}

func tableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	query := `SELECT name FROM sqlite_master WHERE type='table' AND name=?`
	err := db.QueryRowContext(ctx, query, tableName).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return true, nil
}
