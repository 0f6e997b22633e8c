package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sagarc03/sigil"
)

// DefaultRetryBaseDelay is the first backoff interval between attempts.
const DefaultRetryBaseDelay = 100 * time.Millisecond

// RetryConfig bounds retries against a flaky backend.
type RetryConfig struct {
	// Attempts is the total number of tries including the first. Values
	// below 2 disable retrying.
	Attempts uint
	// BaseDelay is the first backoff interval; later intervals grow
	// exponentially with jitter. Zero means DefaultRetryBaseDelay.
	BaseDelay time.Duration
}

// retryingResolver retries ErrStoreUnavailable with capped exponential
// backoff. Unknown keys and context errors surface immediately: a key the
// backend affirmatively does not know will not appear on a second ask.
type retryingResolver struct {
	next sigil.CredentialResolver
	cfg  RetryConfig
}

// WithRetry wraps next with bounded retries for transient backend failures.
func WithRetry(next sigil.CredentialResolver, cfg RetryConfig) sigil.CredentialResolver {
	if cfg.Attempts < 2 {
		return next
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryBaseDelay
	}
	return &retryingResolver{next: next, cfg: cfg}
}

// Resolve implements sigil.CredentialResolver.
func (r *retryingResolver) Resolve(ctx context.Context, accessKeyID string, scope sigil.SigningScope) (sigil.Credential, sigil.Principal, error) {
	var cred sigil.Credential
	var principal sigil.Principal

	operation := func() error {
		var err error
		cred, principal, err = r.next.Resolve(ctx, accessKeyID, scope)
		if err != nil && !errors.Is(err, sigil.ErrStoreUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.BaseDelay

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(r.cfg.Attempts-1)), ctx))
	if err != nil {
		return sigil.Credential{}, sigil.Principal{}, err
	}
	return cred, principal, nil
}
