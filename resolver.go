package sigil

import "context"

// CredentialResolver resolves an access key ID to its signing material and
// the principal that owns it. Implementations report an unknown key with
// ErrUnknownAccessKey and a backend they cannot reach with
// ErrStoreUnavailable; retry decorators treat only the latter as transient.
//
// Resolve must be safe for concurrent use. The returned Credential is used
// for a single verification and must not be retained by the caller.
type CredentialResolver interface {
	Resolve(ctx context.Context, accessKeyID string, scope SigningScope) (Credential, Principal, error)
}

// CredentialResolverFunc adapts a function to a CredentialResolver.
type CredentialResolverFunc func(ctx context.Context, accessKeyID string, scope SigningScope) (Credential, Principal, error)

func (f CredentialResolverFunc) Resolve(ctx context.Context, accessKeyID string, scope SigningScope) (Credential, Principal, error) {
	return f(ctx, accessKeyID, scope)
}
