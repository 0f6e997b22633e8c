package credstore

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sagarc03/sigil"
)

// cachedResolver fronts another resolver with an in-process TTL cache so a
// busy caller does not hammer the backend for the same access key. Only
// successful resolutions are cached; entries live in process memory only
// and age out after the TTL.
type cachedResolver struct {
	next  sigil.CredentialResolver
	cache *lru.LRU[string, cacheEntry]
}

type cacheEntry struct {
	cred      sigil.Credential
	principal sigil.Principal
}

// WithCache wraps next with a TTL cache holding at most size entries.
// A non-positive ttl or size returns next unchanged.
func WithCache(next sigil.CredentialResolver, ttl time.Duration, size int) sigil.CredentialResolver {
	if ttl <= 0 || size <= 0 {
		return next
	}
	return &cachedResolver{
		next:  next,
		cache: lru.NewLRU[string, cacheEntry](size, nil, ttl),
	}
}

// Resolve implements sigil.CredentialResolver.
func (c *cachedResolver) Resolve(ctx context.Context, accessKeyID string, scope sigil.SigningScope) (sigil.Credential, sigil.Principal, error) {
	if entry, found := c.cache.Get(accessKeyID); found {
		return entry.cred, entry.principal, nil
	}

	cred, principal, err := c.next.Resolve(ctx, accessKeyID, scope)
	if err != nil {
		return sigil.Credential{}, sigil.Principal{}, err
	}

	c.cache.Add(accessKeyID, cacheEntry{cred: cred, principal: principal})
	return cred, principal, nil
}
