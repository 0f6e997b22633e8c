// Package sigil provides AWS Signature Version 4 request authentication for
// HTTP services, with pluggable credential backends.
//
// Sigil verifies inbound requests signed with SigV4, through the Authorization
// header or through presigned query parameters, resolves the presented access
// key to a credential and its owning principal, and makes the principal
// available to downstream handlers. It never issues signatures of its own; it
// sits in front of an existing handler and decides whether each request was
// signed by someone the service knows.
//
// # Key Components
//
//   - Verifier: canonicalizes a request, resolves its access key, checks the
//     signature, clock skew and presigned expiry
//   - CredentialResolver: interface for credential lookup (static key sets,
//     SQL databases, remote key services)
//   - Principal: immutable identity bound to authenticated requests
//   - http.AuthMiddleware: net/http middleware tying the pieces together and
//     rendering AWS-style XML error documents on failure
//
// # Example Usage
//
//	resolver := credstore.NewStatic([]credstore.Key{
//	    {AccessKeyID: "AKIDEXAMPLE", SecretKey: secret, Principal: "alice"},
//	})
//	verifier := sigil.NewVerifier(sigil.VerifierConfig{
//	    Region:  "us-east-1",
//	    Service: "execute-api",
//	}, resolver)
//
//	handler := sigilhttp.AuthMiddleware(sigilhttp.MiddlewareConfig{
//	    Verifier: verifier,
//	})(mux)
//
//	// Inside a handler:
//	principal, ok := sigilhttp.PrincipalFromContext(r.Context())
//
// See the http package for the middleware and router, the credstore package
// for resolver implementations and decorators, and the database packages for
// SQL-backed credential stores.
package sigil
