// Package credstore provides CredentialResolver implementations and
// decorators: static key sets, remote key services, a TTL cache and bounded
// retry for flaky backends. SQL-backed resolvers live in the database
// packages.
package credstore

import (
	"context"
	"fmt"

	"github.com/sagarc03/sigil"
)

// Key is one provisioned access key with its owning principal.
type Key struct {
	AccessKeyID  string            `json:"access_key" yaml:"access_key" mapstructure:"access_key"`
	SecretKey    string            `json:"secret_key" yaml:"secret_key" mapstructure:"secret_key"`
	SessionToken string            `json:"session_token,omitempty" yaml:"session_token,omitempty" mapstructure:"session_token"`
	Principal    string            `json:"principal,omitempty" yaml:"principal,omitempty" mapstructure:"principal"`
	Account      string            `json:"account,omitempty" yaml:"account,omitempty" mapstructure:"account"`
	Attributes   map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" mapstructure:"attributes"`
}

// Static resolves credentials from an in-memory set. Suitable for
// configuration file-based provisioning. The set is fixed at construction,
// so lookups need no locking.
type Static struct {
	keys map[string]staticEntry
}

type staticEntry struct {
	cred      sigil.Credential
	principal sigil.Principal
}

// NewStatic creates a Static resolver from the given keys. Entries without
// an access key or secret are skipped; a key without a principal uses the
// access key ID as its identity.
func NewStatic(keys []Key) *Static {
	entries := make(map[string]staticEntry, len(keys))
	for _, k := range keys {
		if k.AccessKeyID == "" || k.SecretKey == "" {
			continue
		}
		principal := k.Principal
		if principal == "" {
			principal = k.AccessKeyID
		}
		entries[k.AccessKeyID] = staticEntry{
			cred: sigil.Credential{
				AccessKeyID:     k.AccessKeyID,
				SecretAccessKey: k.SecretKey,
				SessionToken:    k.SessionToken,
			},
			principal: sigil.NewPrincipal(principal, k.Account, k.Attributes),
		}
	}
	return &Static{keys: entries}
}

// KeysConfig holds configuration for loading access keys.
type KeysConfig struct {
	Inline []Key  `mapstructure:"inline"` // Inline keys from config
	File   string `mapstructure:"file"`   // Path to a JSON or YAML key file
}

// NewStaticFromConfig creates a Static resolver from inline keys and an
// optional key file, merged into one set. File keys take precedence over
// inline keys if there are duplicates.
func NewStaticFromConfig(cfg KeysConfig) (*Static, error) {
	keys := make([]Key, 0, len(cfg.Inline))
	keys = append(keys, cfg.Inline...)

	if cfg.File != "" {
		fileKeys, err := LoadKeysFile(cfg.File)
		if err != nil {
			return nil, err
		}
		keys = append(keys, fileKeys...)
	}

	return NewStatic(keys), nil
}

// Len reports the number of usable keys in the set.
func (s *Static) Len() int {
	return len(s.keys)
}

// Resolve implements sigil.CredentialResolver.
func (s *Static) Resolve(ctx context.Context, accessKeyID string, _ sigil.SigningScope) (sigil.Credential, sigil.Principal, error) {
	if err := ctx.Err(); err != nil {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("resolve key: %w", err)
	}

	entry, found := s.keys[accessKeyID]
	if !found {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("access key not in static set: %w", sigil.ErrUnknownAccessKey)
	}
	return entry.cred, entry.principal, nil
}
