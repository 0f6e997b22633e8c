package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sagarc03/sigil"
)

// DefaultRemoteTimeout bounds a single lookup against the key service.
const DefaultRemoteTimeout = 5 * time.Second

// RemoteConfig configures a Remote resolver.
type RemoteConfig struct {
	// Endpoint is the base URL of the key service, e.g. "https://keys.internal:8443".
	Endpoint string
	// Timeout is the per-lookup budget. Zero means DefaultRemoteTimeout.
	Timeout time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Remote resolves credentials from an external key service over HTTP.
// Lookups are GET {endpoint}/keys/{accessKeyID} with the signing scope as
// query parameters; the service answers 200 with a key document, 404 for
// unknown keys. Anything else, including transport failures, counts as the
// store being unavailable so the retry decorator can take over.
type Remote struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewRemote creates a Remote resolver.
func NewRemote(cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Remote{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		timeout:  timeout,
		client:   client,
	}
}

type remoteKey struct {
	AccessKeyID  string            `json:"access_key"`
	SecretKey    string            `json:"secret_key"`
	SessionToken string            `json:"session_token"`
	Principal    string            `json:"principal"`
	Account      string            `json:"account"`
	Attributes   map[string]string `json:"attributes"`
	Active       *bool             `json:"active"`
}

// Resolve implements sigil.CredentialResolver.
func (r *Remote) Resolve(ctx context.Context, accessKeyID string, scope sigil.SigningScope) (sigil.Credential, sigil.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	lookupURL := fmt.Sprintf("%s/keys/%s?date=%s&region=%s&service=%s",
		r.endpoint,
		url.PathEscape(accessKeyID),
		url.QueryEscape(scope.Date),
		url.QueryEscape(scope.Region),
		url.QueryEscape(scope.Service),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("build key service request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("call key service: %v: %w", err, sigil.ErrStoreUnavailable)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("key service has no such key: %w", sigil.ErrUnknownAccessKey)
	case resp.StatusCode != http.StatusOK:
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("key service returned %d: %w", resp.StatusCode, sigil.ErrStoreUnavailable)
	}

	var key remoteKey
	if err := json.NewDecoder(resp.Body).Decode(&key); err != nil {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("decode key service response: %v: %w", err, sigil.ErrStoreUnavailable)
	}

	if key.SecretKey == "" || (key.Active != nil && !*key.Active) {
		return sigil.Credential{}, sigil.Principal{}, fmt.Errorf("key is not active: %w", sigil.ErrUnknownAccessKey)
	}

	principal := key.Principal
	if principal == "" {
		principal = accessKeyID
	}

	cred := sigil.Credential{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: key.SecretKey,
		SessionToken:    key.SessionToken,
	}
	return cred, sigil.NewPrincipal(principal, key.Account, key.Attributes), nil
}
