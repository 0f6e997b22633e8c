package sigil

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyRecord is one provisioned access key as stored in a SQL backend.
// Listing operations leave SecretAccessKey and SessionToken empty; the
// secret is written once at provisioning time and read back only by
// Resolve during verification.
type KeyRecord struct {
	ID              uuid.UUID
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Principal       string
	Account         string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CredentialStore is a CredentialResolver backed by a database that can
// also be provisioned. Implementations must be safe for concurrent use.
//
// All methods accept a context for cancellation and timeout control.
type CredentialStore interface {
	CredentialResolver

	// CreateKey stores a new access key.
	//
	// Returns:
	//   - KeyRecord: the stored record with ID and timestamps filled in
	//   - error: ErrKeyExists if the access key ID is already provisioned,
	//     or other database errors
	CreateKey(ctx context.Context, record KeyRecord) (KeyRecord, error)

	// ListKeys retrieves provisioned keys whose access key ID starts with
	// prefix, ordered by creation time. An empty prefix lists every key.
	// Returned records never include secret material.
	ListKeys(ctx context.Context, prefix string) ([]KeyRecord, error)

	// DeactivateKey marks an access key inactive so Resolve stops honoring
	// it. The record is kept for audit.
	//
	// Returns:
	//   - error: ErrKeyNotFound if no active key has that ID, or other
	//     database errors
	DeactivateKey(ctx context.Context, accessKeyID string) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error
}

// EscapeLikePattern escapes special LIKE characters (%, _, \) to prevent SQL injection.
func EscapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}
