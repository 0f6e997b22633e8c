// Package sigtest signs HTTP requests with AWS Signature V4 for use in
// tests and examples. The implementation is deliberately independent of the
// verifier so that signed requests exercise the real wire format rather
// than round-tripping through shared code.
package sigtest

import (
	"crypto/hmac"
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
)

const (
	algorithm      = "AWS4-HMAC-SHA256"
	dateTimeFormat = "20060102T150405Z"
	dateFormat     = "20060102"
	terminator     = "aws4_request"

	unsignedPayload  = "UNSIGNED-PAYLOAD"
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// Credentials identifies a signing identity.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// SignRequest signs r in place using the Authorization header form. It sets
// x-amz-date to signedAt and signs host and x-amz-date, plus
// x-amz-content-sha256 and x-amz-security-token when present.
func SignRequest(r *http.Request, creds Credentials, region, service string, signedAt time.Time) error {
	amzDate := signedAt.UTC().Format(dateTimeFormat)
	r.Header.Set("x-amz-date", amzDate)
	if creds.SessionToken != "" {
		r.Header.Set("x-amz-security-token", creds.SessionToken)
	}

	signedHeaders := []string{"host", "x-amz-date"}
	if r.Header.Get("x-amz-content-sha256") != "" {
		signedHeaders = append(signedHeaders, "x-amz-content-sha256")
	}
	if creds.SessionToken != "" {
		signedHeaders = append(signedHeaders, "x-amz-security-token")
	}
	sort.Strings(signedHeaders)

	payloadHash := r.Header.Get("x-amz-content-sha256")
	if payloadHash == "" {
		var err error
		payloadHash, err = hashBody(r)
		if err != nil {
			return err
		}
	}

	scope := strings.Join([]string{signedAt.UTC().Format(dateFormat), region, service, terminator}, "/")
	canonical := canonicalRequest(r, signedHeaders, r.URL.RawQuery, payloadHash)
	signature := sign(creds.SecretAccessKey, scope, amzDate, canonical)

	r.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, creds.AccessKeyID, scope, strings.Join(signedHeaders, ";"), signature,
	))
	return nil
}

// PresignURL returns rawURL with SigV4 presigned query parameters attached,
// valid from signedAt for the given lifetime. Only the host header is
// signed and the payload is left unsigned, matching how presigned URLs are
// typically produced.
func PresignURL(method, rawURL string, creds Credentials, region, service string, signedAt time.Time, lifetime time.Duration) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	amzDate := signedAt.UTC().Format(dateTimeFormat)
	scope := strings.Join([]string{signedAt.UTC().Format(dateFormat), region, service, terminator}, "/")

	q := u.Query()
	q.Set("X-Amz-Algorithm", algorithm)
	q.Set("X-Amz-Credential", creds.AccessKeyID+"/"+scope)
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", strconv.Itoa(int(lifetime/time.Second)))
	q.Set("X-Amz-SignedHeaders", "host")
	if creds.SessionToken != "" {
		q.Set("X-Amz-Security-Token", creds.SessionToken)
	}
	u.RawQuery = q.Encode()

	r := &http.Request{Method: method, URL: u, Host: u.Host, Header: http.Header{}}
	canonical := canonicalRequest(r, []string{"host"}, u.RawQuery, unsignedPayload)
	signature := sign(creds.SecretAccessKey, scope, amzDate, canonical)

	u.RawQuery += "&X-Amz-Signature=" + signature
	return u.String(), nil
}

func canonicalRequest(r *http.Request, signedHeaders []string, rawQuery, payloadHash string) string {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	var headerLines strings.Builder
	for _, name := range signedHeaders {
		value := r.Header.Get(name)
		if name == "host" {
			value = r.Host
			if value == "" {
				value = r.URL.Host
			}
		}
		headerLines.WriteString(name + ":" + strings.TrimSpace(value) + "\n")
	}

	return strings.Join([]string{
		r.Method,
		path,
		canonicalQuery(rawQuery),
		headerLines.String(),
		strings.Join(signedHeaders, ";"),
		payloadHash,
	}, "\n")
}

func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	pairs := make([]string, 0, len(values))
	for key, vs := range values {
		if key == "X-Amz-Signature" {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, uriEncode(key)+"="+uriEncode(v))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

const upperhex = "0123456789ABCDEF"

func uriEncode(s string) string {
	var b strings.Builder
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

func hashBody(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return emptyPayloadHash, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if err := r.Body.Close(); err != nil {
		return "", fmt.Errorf("close body: %w", err)
	}
	r.Body = io.NopCloser(strings.NewReader(string(data)))
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func sign(secretKey, scope, amzDate, canonical string) string {
	creqHash := sha256.Sum256([]byte(canonical))
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hex.EncodeToString(creqHash[:]),
	}, "\n")

	parts := strings.Split(scope, "/")
	key := []byte("AWS4" + secretKey)
	for _, part := range parts {
		key = hmacSHA256(key, []byte(part))
	}
	return hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
