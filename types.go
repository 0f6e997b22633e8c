package sigil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"time"
)

// Credential is the signing material resolved for an access key ID. The
// secret never leaves the process: String and LogValue render only the
// access key ID, so a Credential cannot leak through formatting or logging.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func (c Credential) IsZero() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

func (c Credential) String() string {
	return "Credential(" + c.AccessKeyID + ")"
}

func (c Credential) GoString() string {
	return c.String()
}

func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// SigningScope is the date/region/service triple a SigV4 credential is
// scoped to.
type SigningScope struct {
	Date    string // YYYYMMDD
	Region  string
	Service string
}

func (s SigningScope) String() string {
	return s.Date + "/" + s.Region + "/" + s.Service + "/" + scopeTerminator
}

// CanonicalRequest is the normalized form of an HTTP request that SigV4
// signs. Two requests that differ only in header order, header case or
// URI encoding produce the same canonical request.
type CanonicalRequest struct {
	Method        string
	URI           string
	Query         string
	Headers       string
	SignedHeaders string
	PayloadHash   string
}

// Text returns the serialized canonical request.
func (c CanonicalRequest) Text() string {
	return strings.Join([]string{
		c.Method,
		c.URI,
		c.Query,
		c.Headers,
		c.SignedHeaders,
		c.PayloadHash,
	}, "\n")
}

// Hash returns the lowercase hex SHA-256 of the serialized canonical request.
func (c CanonicalRequest) Hash() string {
	sum := sha256.Sum256([]byte(c.Text()))
	return hex.EncodeToString(sum[:])
}

// Principal is the identity that owns a credential. It is immutable once
// constructed; Attributes returns a copy.
type Principal struct {
	id         string
	account    string
	attributes map[string]string
}

func NewPrincipal(id, account string, attributes map[string]string) Principal {
	return Principal{id: id, account: account, attributes: maps.Clone(attributes)}
}

// ID returns the principal identifier, for example a user name or ARN.
func (p Principal) ID() string {
	return p.id
}

// Account returns the account or tenant the principal belongs to.
func (p Principal) Account() string {
	return p.account
}

// Attribute returns a single named attribute, or the empty string.
func (p Principal) Attribute(name string) string {
	return p.attributes[name]
}

// Attributes returns a copy of all attributes.
func (p Principal) Attributes() map[string]string {
	return maps.Clone(p.attributes)
}

// AuthContext carries the outcome of a successful verification.
type AuthContext struct {
	Principal  Principal
	SourceAddr string
	VerifiedAt time.Time
	RequestID  string
}

// Tables holds configurable table names for credential storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	Credentials string `mapstructure:"credentials"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Credentials == "" {
		return errors.New("validate tables: credentials table name cannot be empty")
	}

	if !IsValidTableName(t.Credentials) {
		return fmt.Errorf("validate tables: invalid credentials table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Credentials)
	}

	return nil
}
