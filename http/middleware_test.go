package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigil"
	"github.com/sagarc03/sigil/credstore"
	sigilhttp "github.com/sagarc03/sigil/http"
	"github.com/sagarc03/sigil/sigtest"
)

const (
	testRegion  = "us-east-1"
	testService = "execute-api"
)

var testCreds = sigtest.Credentials{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
}

// newTestVerifier builds a verifier over a single static key owned by a
// known principal.
func newTestVerifier(cfg sigil.VerifierConfig) *sigil.Verifier {
	if cfg.Region == "" {
		cfg.Region = testRegion
	}
	if cfg.Service == "" {
		cfg.Service = testService
	}

	resolver := credstore.NewStatic([]credstore.Key{{
		AccessKeyID: testCreds.AccessKeyID,
		SecretKey:   testCreds.SecretAccessKey,
		Principal:   "arn:aws:iam::123456789012:user/test",
		Account:     "123456789012",
	}})

	return sigil.NewVerifier(cfg, resolver)
}

// signedRequest returns a request carrying a valid Authorization header
// signed as of now.
func signedRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	require.NoError(t, sigtest.SignRequest(req, testCreds, testRegion, testService, time.Now()))
	return req
}

func TestAuthMiddleware_PublicAccess(t *testing.T) {
	// Handler that just writes OK
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Nil verifier = public access
	wrapped := sigilhttp.AuthMiddleware(sigilhttp.MiddlewareConfig{})(handler)

	req := httptest.NewRequest("GET", "/data", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuthMiddleware_ValidSignature(t *testing.T) {
	calls := 0
	var boundPrincipal sigil.Principal
	var boundOK bool
	var boundAuth sigil.AuthContext

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		boundPrincipal, boundOK = sigilhttp.PrincipalFromContext(r.Context())
		boundAuth, _ = sigilhttp.AuthContextFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	cfg := sigilhttp.MiddlewareConfig{Verifier: newTestVerifier(sigil.VerifierConfig{})}
	wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

	req := signedRequest(t, "GET", "/data?user=alice", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, 1, calls, "inner handler must run exactly once")

	require.True(t, boundOK, "principal must be bound on success")
	assert.Equal(t, "arn:aws:iam::123456789012:user/test", boundPrincipal.ID())
	assert.Equal(t, "123456789012", boundPrincipal.Account())

	assert.Equal(t, boundPrincipal, boundAuth.Principal)
	assert.False(t, boundAuth.VerifiedAt.IsZero())
	assert.NotEmpty(t, boundAuth.RequestID)
	assert.Equal(t, boundAuth.RequestID, rec.Header().Get("x-amz-request-id"))
}

func TestAuthMiddleware_PresignedURL(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cfg := sigilhttp.MiddlewareConfig{Verifier: newTestVerifier(sigil.VerifierConfig{})}
	wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

	u, err := sigtest.PresignURL("GET", "http://example.com/data", testCreds, testRegion, testService, time.Now(), time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", u, nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
}

func TestAuthMiddleware_BodyReadableAfterVerify(t *testing.T) {
	var gotBody string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
	})

	cfg := sigilhttp.MiddlewareConfig{Verifier: newTestVerifier(sigil.VerifierConfig{})}
	wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

	req := signedRequest(t, "POST", "/data", strings.NewReader("hello world"))
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, "hello world", gotBody, "payload hashing must not consume the body")
}

func TestAuthMiddleware_FailureNeverReachesInner(t *testing.T) {
	tests := []struct {
		Name       string
		Request    func(t *testing.T) *http.Request
		WantStatus int
		WantCode   string
	}{
		{
			Name: "no signature",
			Request: func(t *testing.T) *http.Request {
				return httptest.NewRequest("GET", "/data", nil)
			},
			WantStatus: http.StatusForbidden,
			WantCode:   "MissingAuthenticationToken",
		},
		{
			Name: "truncated signature",
			Request: func(t *testing.T) *http.Request {
				req := signedRequest(t, "GET", "/data", nil)
				auth := req.Header.Get("Authorization")
				req.Header.Set("Authorization", auth[:len(auth)-8])
				return req
			},
			WantStatus: http.StatusForbidden,
			WantCode:   "SignatureDoesNotMatch",
		},
		{
			Name: "tampered path",
			Request: func(t *testing.T) *http.Request {
				req := signedRequest(t, "GET", "/data", nil)
				req.URL.Path = "/data/other"
				return req
			},
			WantStatus: http.StatusForbidden,
			WantCode:   "SignatureDoesNotMatch",
		},
		{
			Name: "tampered query",
			Request: func(t *testing.T) *http.Request {
				req := signedRequest(t, "GET", "/data?user=alice", nil)
				req.URL.RawQuery = "user=mallory"
				return req
			},
			WantStatus: http.StatusForbidden,
			WantCode:   "SignatureDoesNotMatch",
		},
		{
			Name: "unknown access key",
			Request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest("GET", "/data", nil)
				creds := sigtest.Credentials{AccessKeyID: "AKIDNOSUCHKEY", SecretAccessKey: "nope"}
				require.NoError(t, sigtest.SignRequest(req, creds, testRegion, testService, time.Now()))
				return req
			},
			WantStatus: http.StatusForbidden,
			WantCode:   "InvalidClientTokenId",
		},
		{
			Name: "stale timestamp",
			Request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest("GET", "/data", nil)
				require.NoError(t, sigtest.SignRequest(req, testCreds, testRegion, testService, time.Now().Add(-20*time.Minute)))
				return req
			},
			WantStatus: http.StatusForbidden,
			WantCode:   "RequestExpired",
		},
		{
			Name: "wrong region scope",
			Request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest("GET", "/data", nil)
				require.NoError(t, sigtest.SignRequest(req, testCreds, "eu-west-1", testService, time.Now()))
				return req
			},
			WantStatus: http.StatusForbidden,
			WantCode:   "SignatureDoesNotMatch",
		},
	}

	cfg := sigilhttp.MiddlewareConfig{Verifier: newTestVerifier(sigil.VerifierConfig{})}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})
			wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, tt.Request(t))

			assert.False(t, called, "inner handler must not run on failure")
			assert.Equal(t, tt.WantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), "<Code>"+tt.WantCode+"</Code>")
			assert.Contains(t, rec.Body.String(), "<RequestId>")
			assert.NotEmpty(t, rec.Header().Get("x-amz-request-id"))
		})
	}
}

func TestAuthMiddleware_MethodNotAllowed(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	cfg := sigilhttp.MiddlewareConfig{
		Verifier:       newTestVerifier(sigil.VerifierConfig{}),
		AllowedMethods: []string{"GET", "POST"},
	}
	wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

	req := signedRequest(t, "DELETE", "/data", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Code>InvalidRequestMethod</Code>")
}

func TestAuthMiddleware_ContentType(t *testing.T) {
	cfg := sigilhttp.MiddlewareConfig{
		Verifier:            newTestVerifier(sigil.VerifierConfig{}),
		AllowedContentTypes: []string{"application/json"},
	}

	t.Run("disallowed type is rejected", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})
		wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

		req := httptest.NewRequest("POST", "/data", strings.NewReader("x=1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.NoError(t, sigtest.SignRequest(req, testCreds, testRegion, testService, time.Now()))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "<Code>InvalidContentType</Code>")
	})

	t.Run("allowed type with parameters passes", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

		req := httptest.NewRequest("POST", "/data", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		require.NoError(t, sigtest.SignRequest(req, testCreds, testRegion, testService, time.Now()))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	})

	t.Run("bodyless GET is exempt", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

		// Some clients stamp application/octet-stream on GETs.
		req := httptest.NewRequest("GET", "/data", nil)
		req.Header.Set("Content-Type", "application/octet-stream")
		require.NoError(t, sigtest.SignRequest(req, testCreds, testRegion, testService, time.Now()))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	})

	t.Run("no content type header passes", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

		req := signedRequest(t, "GET", "/data", nil)
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	})
}

func TestAuthMiddleware_RequiredSignedHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	cfg := sigilhttp.MiddlewareConfig{
		Verifier: newTestVerifier(sigil.VerifierConfig{
			RequiredSignedHeaders: []string{"x-api-version"},
		}),
	}
	wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

	req := signedRequest(t, "GET", "/data", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Code>IncompleteSignature</Code>")
}

func TestAuthMiddleware_SessionToken(t *testing.T) {
	stored := credstore.Key{
		AccessKeyID:  "AKIDSESSION",
		SecretKey:    "sessionsecret",
		SessionToken: "FwoGZXIvYXdzEBc",
		Principal:    "session-user",
	}
	verifier := sigil.NewVerifier(sigil.VerifierConfig{
		Region:  testRegion,
		Service: testService,
	}, credstore.NewStatic([]credstore.Key{stored}))

	cfg := sigilhttp.MiddlewareConfig{Verifier: verifier}

	t.Run("matching token passes", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

		req := httptest.NewRequest("GET", "/data", nil)
		creds := sigtest.Credentials{AccessKeyID: stored.AccessKeyID, SecretAccessKey: stored.SecretKey, SessionToken: stored.SessionToken}
		require.NoError(t, sigtest.SignRequest(req, creds, testRegion, testService, time.Now()))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})
		wrapped := sigilhttp.AuthMiddleware(cfg)(handler)

		req := httptest.NewRequest("GET", "/data", nil)
		creds := sigtest.Credentials{AccessKeyID: stored.AccessKeyID, SecretAccessKey: stored.SecretKey, SessionToken: "stolen"}
		require.NoError(t, sigtest.SignRequest(req, creds, testRegion, testService, time.Now()))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "<Code>InvalidClientTokenId</Code>")
	})
}

func TestAuthMiddleware_StoreUnavailable(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	down := sigil.CredentialResolverFunc(func(ctx context.Context, accessKeyID string, scope sigil.SigningScope) (sigil.Credential, sigil.Principal, error) {
		return sigil.Credential{}, sigil.Principal{}, sigil.ErrStoreUnavailable
	})
	verifier := sigil.NewVerifier(sigil.VerifierConfig{Region: testRegion, Service: testService}, down)

	wrapped := sigilhttp.AuthMiddleware(sigilhttp.MiddlewareConfig{Verifier: verifier})(handler)

	req := signedRequest(t, "GET", "/data", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Code>ServiceFailure</Code>")
	assert.Contains(t, rec.Body.String(), "<Type>Receiver</Type>")
}

func TestAuthMiddleware_ReusesRequestID(t *testing.T) {
	var innerID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerID = sigilhttp.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	cfg := sigilhttp.MiddlewareConfig{Verifier: newTestVerifier(sigil.VerifierConfig{})}
	wrapped := sigilhttp.RequestIDMiddleware(sigilhttp.AuthMiddleware(cfg)(handler))

	req := signedRequest(t, "GET", "/data", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.NotEmpty(t, innerID)
	assert.Equal(t, innerID, rec.Header().Get("x-amz-request-id"), "auth middleware must reuse the assigned id")
}
