package sigil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	SignatureAlgorithm = "AWS4-HMAC-SHA256"
	UnsignedPayload    = "UNSIGNED-PAYLOAD"
	// EmptyPayloadHash is the SHA-256 of a zero-length body.
	EmptyPayloadHash  = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	MaxExpiresSeconds = 604800 // 7 days
	DateTimeFormat    = "20060102T150405Z"
	DateFormat        = "20060102"

	scopeTerminator = "aws4_request"
)

const (
	paramAlgorithm     = "X-Amz-Algorithm"
	paramCredential    = "X-Amz-Credential"
	paramDate          = "X-Amz-Date"
	paramExpires       = "X-Amz-Expires"
	paramSignedHeaders = "X-Amz-SignedHeaders"
	paramSignature     = "X-Amz-Signature"
	paramSecurityToken = "X-Amz-Security-Token"

	headerAuthorization = "Authorization"
	headerDate          = "x-amz-date"
	headerContentSHA256 = "x-amz-content-sha256"
	headerSecurityToken = "x-amz-security-token"
)

// SignatureOptions tweak canonicalization for service families that deviate
// from the default SigV4 rules.
type SignatureOptions struct {
	// S3URIRules keeps path segments verbatim: no dot-segment removal and no
	// slash collapsing. S3 signs object keys this way.
	S3URIRules bool
}

// signatureParams is the signature material extracted from a request,
// either from the Authorization header or from presigned query parameters.
type signatureParams struct {
	presigned     bool
	accessKeyID   string
	scope         SigningScope
	timestamp     time.Time
	expires       int // seconds, presigned only
	signedHeaders []string
	signature     string
	sessionToken  string
}

// parseSignatureParams extracts the signature material from r. The
// Authorization header wins when both forms are present; a request with
// neither fails with ErrMissingAuthToken.
func parseSignatureParams(r *http.Request) (*signatureParams, error) {
	auth := r.Header.Get(headerAuthorization)
	query := r.URL.Query()

	switch {
	case auth != "":
		return parseAuthorizationHeader(auth, r, query)
	case query.Get(paramAlgorithm) != "" || query.Get(paramSignature) != "":
		return parsePresignedQuery(query)
	default:
		return nil, ErrMissingAuthToken
	}
}

func parseAuthorizationHeader(auth string, r *http.Request, query url.Values) (*signatureParams, error) {
	scheme, rest, _ := strings.Cut(auth, " ")
	if scheme != SignatureAlgorithm {
		return nil, fmt.Errorf("unsupported authorization scheme %q: %w", scheme, ErrMalformedRequest)
	}

	params := &signatureParams{}
	seen := make(map[string]bool, 3)
	for _, field := range strings.Split(rest, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("authorization parameter %q is not name=value: %w", field, ErrMalformedRequest)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate authorization parameter %s: %w", name, ErrMalformedRequest)
		}
		seen[name] = true

		switch name {
		case "Credential":
			accessKeyID, scope, err := parseCredentialScope(value)
			if err != nil {
				return nil, err
			}
			params.accessKeyID = accessKeyID
			params.scope = scope
		case "SignedHeaders":
			params.signedHeaders = strings.Split(value, ";")
		case "Signature":
			params.signature = value
		default:
			return nil, fmt.Errorf("unknown authorization parameter %s: %w", name, ErrMalformedRequest)
		}
	}

	if params.accessKeyID == "" || len(params.signedHeaders) == 0 || params.signature == "" {
		return nil, fmt.Errorf("authorization header requires Credential, SignedHeaders and Signature: %w", ErrMalformedRequest)
	}

	if err := validateSignedHeaderList(params.signedHeaders); err != nil {
		return nil, err
	}

	timestamp, err := requestTimestamp(r, query)
	if err != nil {
		return nil, err
	}
	params.timestamp = timestamp
	params.sessionToken = r.Header.Get(headerSecurityToken)

	return params, nil
}

func parsePresignedQuery(query url.Values) (*signatureParams, error) {
	for _, name := range []string{paramAlgorithm, paramCredential, paramDate, paramExpires, paramSignedHeaders, paramSignature} {
		if query.Get(name) == "" {
			return nil, fmt.Errorf("missing required query parameter %s: %w", name, ErrMalformedRequest)
		}
	}

	if alg := query.Get(paramAlgorithm); alg != SignatureAlgorithm {
		return nil, fmt.Errorf("unsupported algorithm %q: %w", alg, ErrMalformedRequest)
	}

	accessKeyID, scope, err := parseCredentialScope(query.Get(paramCredential))
	if err != nil {
		return nil, err
	}

	timestamp, err := parseAmzDate(query.Get(paramDate))
	if err != nil {
		return nil, err
	}

	expires, err := strconv.Atoi(query.Get(paramExpires))
	if err != nil || expires < 1 || expires > MaxExpiresSeconds {
		return nil, fmt.Errorf("%s must be between 1 and %d seconds: %w", paramExpires, MaxExpiresSeconds, ErrMalformedRequest)
	}

	signedHeaders := strings.Split(query.Get(paramSignedHeaders), ";")
	if err := validateSignedHeaderList(signedHeaders); err != nil {
		return nil, err
	}

	return &signatureParams{
		presigned:     true,
		accessKeyID:   accessKeyID,
		scope:         scope,
		timestamp:     timestamp,
		expires:       expires,
		signedHeaders: signedHeaders,
		signature:     query.Get(paramSignature),
		sessionToken:  query.Get(paramSecurityToken),
	}, nil
}

// parseCredentialScope splits "access_key/date/region/service/aws4_request".
func parseCredentialScope(value string) (string, SigningScope, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 5 {
		return "", SigningScope{}, fmt.Errorf("credential must have 5 slash-separated parts, got %d: %w", len(parts), ErrMalformedRequest)
	}
	if parts[4] != scopeTerminator {
		return "", SigningScope{}, fmt.Errorf("credential must end in %s: %w", scopeTerminator, ErrMalformedRequest)
	}
	for _, part := range parts[:4] {
		if part == "" {
			return "", SigningScope{}, fmt.Errorf("credential has an empty component: %w", ErrMalformedRequest)
		}
	}
	return parts[0], SigningScope{Date: parts[1], Region: parts[2], Service: parts[3]}, nil
}

// requestTimestamp finds the request timestamp, preferring the X-Amz-Date
// query parameter, then the x-amz-date header, then the Date header.
func requestTimestamp(r *http.Request, query url.Values) (time.Time, error) {
	if v := query.Get(paramDate); v != "" {
		return parseAmzDate(v)
	}
	if v := r.Header.Get(headerDate); v != "" {
		return parseAmzDate(v)
	}
	if v := r.Header.Get("Date"); v != "" {
		t, err := http.ParseTime(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid Date header %q: %w", v, ErrMalformedRequest)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("request carries no date: %w", ErrMalformedRequest)
}

func parseAmzDate(v string) (time.Time, error) {
	t, err := time.Parse(DateTimeFormat, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not in %s format: %w", v, DateTimeFormat, ErrMalformedRequest)
	}
	return t, nil
}

// validateSignedHeaderList enforces the wire rules for the SignedHeaders
// list: lowercase names, strictly sorted, and host must be signed.
func validateSignedHeaderList(names []string) error {
	hasHost := false
	for i, name := range names {
		if name == "" || name != strings.ToLower(name) {
			return fmt.Errorf("signed header %q must be lowercase: %w", name, ErrMalformedRequest)
		}
		if i > 0 && names[i-1] >= name {
			return fmt.Errorf("signed headers must be sorted and unique: %w", ErrMalformedRequest)
		}
		if name == "host" {
			hasHost = true
		}
	}
	if !hasHost {
		return fmt.Errorf("signed headers must include host: %w", ErrMalformedRequest)
	}
	return nil
}

// BuildCanonicalRequest normalizes r into the canonical form SigV4 signs.
// Unless the client declared x-amz-content-sha256 or the request is
// presigned, the body is consumed to hash the payload and replaced with an
// equivalent reader so downstream handlers can still read it.
func BuildCanonicalRequest(r *http.Request, signedHeaders []string, presigned bool, opts SignatureOptions) (CanonicalRequest, error) {
	uri, err := canonicalURIPath(r.URL.EscapedPath(), opts.S3URIRules)
	if err != nil {
		return CanonicalRequest{}, err
	}

	query, err := canonicalQueryString(r.URL.RawQuery)
	if err != nil {
		return CanonicalRequest{}, err
	}

	headers, err := canonicalHeaders(r, signedHeaders)
	if err != nil {
		return CanonicalRequest{}, err
	}

	payloadHash, err := resolvePayloadHash(r, presigned)
	if err != nil {
		return CanonicalRequest{}, err
	}

	return CanonicalRequest{
		Method:        r.Method,
		URI:           uri,
		Query:         query,
		Headers:       headers,
		SignedHeaders: strings.Join(signedHeaders, ";"),
		PayloadHash:   payloadHash,
	}, nil
}

// StringToSign builds the value the signing key signs: the algorithm, the
// request timestamp, the credential scope and the canonical request hash.
func StringToSign(cr CanonicalRequest, timestamp time.Time, scope SigningScope) string {
	return strings.Join([]string{
		SignatureAlgorithm,
		timestamp.UTC().Format(DateTimeFormat),
		scope.String(),
		cr.Hash(),
	}, "\n")
}

// canonicalURIPath normalizes the escaped request path. By default
// dot-segments are resolved, repeated slashes collapse and each segment is
// re-encoded; a path that climbs above the root is rejected. Under S3 rules
// segments pass through with re-encoding only.
func canonicalURIPath(path string, s3 bool) (string, error) {
	if path == "" {
		return "/", nil
	}
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("request path %q is not absolute: %w", path, ErrMalformedRequest)
	}

	if s3 {
		parts := strings.Split(path, "/")
		for i, part := range parts {
			normalized, err := normalizeURIComponent(part)
			if err != nil {
				return "", err
			}
			parts[i] = normalized
		}
		return strings.Join(parts, "/"), nil
	}

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(path[1:], "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) == 0 {
				return "", fmt.Errorf("request path escapes the root: %w", ErrMalformedRequest)
			}
			segments = segments[:len(segments)-1]
		default:
			normalized, err := normalizeURIComponent(seg)
			if err != nil {
				return "", err
			}
			segments = append(segments, normalized)
		}
	}

	canonical := "/" + strings.Join(segments, "/")
	if canonical != "/" && strings.HasSuffix(path, "/") {
		canonical += "/"
	}
	return canonical, nil
}

// canonicalQueryString re-encodes and sorts the query by key then value,
// excluding the signature itself so signing and verification see the same
// string.
func canonicalQueryString(rawQuery string) (string, error) {
	if rawQuery == "" {
		return "", nil
	}

	type pair struct{ key, value string }
	pairs := make([]pair, 0, strings.Count(rawQuery, "&")+1)
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil || !utf8.ValidString(key) {
			return "", fmt.Errorf("query parameter name %q has invalid encoding: %w", rawKey, ErrMalformedRequest)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil || !utf8.ValidString(value) {
			return "", fmt.Errorf("query parameter %q has an invalid value encoding: %w", key, ErrMalformedRequest)
		}

		if key == paramSignature {
			continue
		}
		pairs = append(pairs, pair{uriEncode(key), uriEncode(value)})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String(), nil
}

// canonicalHeaders renders the signed headers as "name:value\n" lines.
// Names arrive lowercase and sorted from the signature material; values are
// trimmed, inner whitespace runs collapse to one space and repeated headers
// join with commas. Host comes from r.Host since net/http moves it out of
// the header map.
func canonicalHeaders(r *http.Request, signedHeaders []string) (string, error) {
	var b strings.Builder
	for _, name := range signedHeaders {
		var values []string
		if name == "host" {
			host := r.Host
			if host == "" {
				host = r.Header.Get("Host")
			}
			if host == "" {
				return "", fmt.Errorf("signed header host has no value: %w", ErrMalformedRequest)
			}
			values = []string{host}
		} else {
			values = r.Header.Values(name)
			if len(values) == 0 {
				return "", fmt.Errorf("signed header %s missing from request: %w", name, ErrMalformedRequest)
			}
		}

		b.WriteString(name)
		b.WriteByte(':')
		for i, v := range values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(collapseSpace(v))
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func collapseSpace(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// normalizeURIComponent decodes a path or query component and re-encodes it
// against the RFC 3986 unreserved set with uppercase hex, so equivalent but
// differently encoded components canonicalize identically.
func normalizeURIComponent(s string) (string, error) {
	decoded, err := url.PathUnescape(strings.ReplaceAll(s, "+", " "))
	if err != nil || !utf8.ValidString(decoded) {
		return "", fmt.Errorf("path component %q has invalid encoding: %w", s, ErrMalformedRequest)
	}
	return uriEncode(decoded), nil
}

const upperhex = "0123456789ABCDEF"

func uriEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xF])
		}
	}
	return b.String()
}

// resolvePayloadHash prefers the client-declared x-amz-content-sha256,
// falls back to UNSIGNED-PAYLOAD for presigned requests, and otherwise
// hashes the body once.
func resolvePayloadHash(r *http.Request, presigned bool) (string, error) {
	if declared := r.Header.Get(headerContentSHA256); declared != "" {
		return declared, nil
	}
	if presigned {
		return UnsignedPayload, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return EmptyPayloadHash, nil
	}

	var buf bytes.Buffer
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(h, &buf), r.Body); err != nil {
		return "", fmt.Errorf("read request body: %w", err)
	}
	if err := r.Body.Close(); err != nil {
		return "", fmt.Errorf("close request body: %w", err)
	}
	r.Body = io.NopCloser(&buf)

	return hex.EncodeToString(h.Sum(nil)), nil
}
