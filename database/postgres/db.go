package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/sigil"
)

type columnInfo struct {
	name       string
	dataType   string
	isNullable bool
}

var credentialsTableSchema = map[string]columnInfo{
	"id":                   {"id", "uuid", false},
	"access_key_id":        {"access_key_id", "text", false},
	"secret_access_key":    {"secret_access_key", "text", false},
	"session_token":        {"session_token", "text", false},
	"principal_identifier": {"principal_identifier", "text", false},
	"account_or_tenant_id": {"account_or_tenant_id", "text", false},
	"active":               {"active", "boolean", false},
	"created_at":           {"created_at", "timestamp with time zone", false},
	"updated_at":           {"updated_at", "timestamp with time zone", false},
}

// ValidateSchema checks that the credential table exists and its columns
// match the expected types and nullability.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables sigil.Tables) error {
	if err := validateTableSchema(ctx, pool, tables.Credentials, credentialsTableSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tables.Credentials, err)
	}
	return nil
}

func validateTableSchema(ctx context.Context, pool *pgxpool.Pool, tableName string, expectedSchema map[string]columnInfo) error {
	if !sigil.IsValidTableName(tableName) {
		return fmt.Errorf("validate table schema: invalid table name: %s", tableName)
	}

	exists, err := tableExists(ctx, pool, tableName)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate table schema: table %s does not exist", tableName)
	}

	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := pool.Query(ctx, query, tableName)
	if err != nil {
		return fmt.Errorf("validate table schema: query columns: %w", err)
	}
	defer rows.Close()

	actualColumns := make(map[string]columnInfo)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return fmt.Errorf("validate table schema: scan column: %w", err)
		}
		actualColumns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: nullable == "YES",
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

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`
	err := pool.QueryRow(ctx, query, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists, nil
}
