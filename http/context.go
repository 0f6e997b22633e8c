package http

import (
	"context"

	"github.com/sagarc03/sigil"
)

type contextKey int

const (
	principalKey contextKey = iota
	authContextKey
	requestIDKey
)

// PrincipalFromContext returns the principal bound by AuthMiddleware. The
// second return is false for requests that did not pass authentication.
func PrincipalFromContext(ctx context.Context) (sigil.Principal, bool) {
	p, ok := ctx.Value(principalKey).(sigil.Principal)
	return p, ok
}

// AuthContextFromContext returns the full authentication outcome bound by
// AuthMiddleware: principal, source address, verification time, request ID.
func AuthContextFromContext(ctx context.Context) (sigil.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(sigil.AuthContext)
	return ac, ok
}

// RequestIDFromContext returns the request ID assigned by
// RequestIDMiddleware or AuthMiddleware, or the empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func withPrincipal(ctx context.Context, p sigil.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func withAuthContext(ctx context.Context, ac sigil.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
