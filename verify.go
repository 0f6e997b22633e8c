package sigil

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// DefaultTolerance bounds how far a request timestamp may drift from the
// server clock in either direction.
const DefaultTolerance = 5 * time.Minute

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Region and Service pin the credential scope requests must be signed
	// for, e.g. "us-east-1" and "execute-api".
	Region  string
	Service string
	// Tolerance is the allowed clock skew in both directions, boundaries
	// inclusive. Zero means DefaultTolerance; a negative value disables the
	// check.
	Tolerance time.Duration
	// RequiredSignedHeaders lists headers clients must cover with the
	// signature, in addition to host.
	RequiredSignedHeaders []string
	Options               SignatureOptions
}

// Verifier authenticates inbound requests signed with AWS Signature V4.
type Verifier struct {
	region    string
	service   string
	tolerance time.Duration
	required  []string
	opts      SignatureOptions
	resolver  CredentialResolver
	now       func() time.Time
}

// NewVerifier creates a Verifier that resolves access keys through resolver.
func NewVerifier(cfg VerifierConfig, resolver CredentialResolver) *Verifier {
	tolerance := cfg.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	required := make([]string, 0, len(cfg.RequiredSignedHeaders))
	for _, name := range cfg.RequiredSignedHeaders {
		required = append(required, strings.ToLower(name))
	}

	return &Verifier{
		region:    cfg.Region,
		service:   cfg.Service,
		tolerance: tolerance,
		required:  required,
		opts:      cfg.Options,
		resolver:  resolver,
		now:       time.Now,
	}
}

// Verify authenticates r against the current server clock. On success it
// returns the principal that signed the request.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) (Principal, error) {
	return v.VerifyAt(ctx, r, v.now())
}

// VerifyAt authenticates r as of serverTime.
//
// The request runs through the full pipeline: parse the signature material,
// validate its scope against the configured region and service, resolve the
// access key, check clock skew and presigned expiry, rebuild the canonical
// request and compare signatures in constant time. An unknown access key
// fails before any signature computation happens.
func (v *Verifier) VerifyAt(ctx context.Context, r *http.Request, serverTime time.Time) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, fmt.Errorf("verify request: %w", err)
	}

	params, err := parseSignatureParams(r)
	if err != nil {
		return Principal{}, fmt.Errorf("verify request: %w", err)
	}

	if err := v.validateParams(params); err != nil {
		return Principal{}, fmt.Errorf("verify request: %w", err)
	}

	cred, principal, err := v.resolver.Resolve(ctx, params.accessKeyID, params.scope)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve access key: %w", err)
	}

	if err := v.checkFreshness(params, serverTime); err != nil {
		return Principal{}, fmt.Errorf("verify request: %w", err)
	}

	if cred.SessionToken != "" && !hmac.Equal([]byte(cred.SessionToken), []byte(params.sessionToken)) {
		return Principal{}, fmt.Errorf("verify request: security token does not match: %w", ErrUnknownAccessKey)
	}

	cr, err := BuildCanonicalRequest(r, params.signedHeaders, params.presigned, v.opts)
	if err != nil {
		return Principal{}, fmt.Errorf("verify request: %w", err)
	}

	expected := computeSignature(cred.SecretAccessKey, params.scope, StringToSign(cr, params.timestamp, params.scope))
	if !hmac.Equal([]byte(expected), []byte(params.signature)) {
		return Principal{}, fmt.Errorf("verify request: %w", ErrSignatureMismatch)
	}

	return principal, nil
}

// validateParams checks the presented credential scope against the server
// configuration and enforces required signed headers. Scope inconsistencies
// surface as a signature mismatch, the way AWS reports them, since the
// signature cannot be valid for this service either way.
func (v *Verifier) validateParams(params *signatureParams) error {
	if params.scope.Date != params.timestamp.UTC().Format(DateFormat) {
		return fmt.Errorf("credential scope date %s does not match the request date: %w", params.scope.Date, ErrSignatureMismatch)
	}
	if params.scope.Region != v.region {
		return fmt.Errorf("credential scoped to region %s, expected %s: %w", params.scope.Region, v.region, ErrSignatureMismatch)
	}
	if params.scope.Service != v.service {
		return fmt.Errorf("credential scoped to service %s, expected %s: %w", params.scope.Service, v.service, ErrSignatureMismatch)
	}
	for _, name := range v.required {
		if !slices.Contains(params.signedHeaders, name) {
			return fmt.Errorf("header %s must be signed: %w", name, ErrMalformedRequest)
		}
	}
	return nil
}

// checkFreshness applies the two-sided skew window to header-signed
// requests. Presigned requests instead live in [timestamp, timestamp +
// expires], with the skew tolerance as grace for a signer whose clock runs
// ahead of ours.
func (v *Verifier) checkFreshness(params *signatureParams, serverTime time.Time) error {
	tolerance := v.tolerance

	if params.presigned {
		if tolerance >= 0 && serverTime.Add(tolerance).Before(params.timestamp) {
			return fmt.Errorf("presigned request is not yet valid: %w", ErrRequestExpired)
		}
		deadline := params.timestamp.Add(time.Duration(params.expires) * time.Second)
		if serverTime.After(deadline) {
			return fmt.Errorf("presigned request expired at %s: %w", deadline.UTC().Format(DateTimeFormat), ErrRequestExpired)
		}
		return nil
	}

	if tolerance < 0 {
		return nil
	}
	if params.timestamp.Before(serverTime.Add(-tolerance)) || params.timestamp.After(serverTime.Add(tolerance)) {
		return fmt.Errorf("request timestamp %s is outside the allowed window: %w", params.timestamp.UTC().Format(DateTimeFormat), ErrRequestExpired)
	}
	return nil
}

func computeSignature(secretKey string, scope SigningScope, stringToSign string) string {
	signingKey := deriveSigningKey(secretKey, scope)
	return hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))
}

// deriveSigningKey walks the AWS4 HMAC chain from the secret through date,
// region and service to the terminator.
func deriveSigningKey(secretKey string, scope SigningScope) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), []byte(scope.Date))
	kRegion := hmacSHA256(kDate, []byte(scope.Region))
	kService := hmacSHA256(kRegion, []byte(scope.Service))
	return hmacSHA256(kService, []byte(scopeTerminator))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
