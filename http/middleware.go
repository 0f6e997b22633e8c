package http

import (
	"fmt"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/sagarc03/sigil"
)

// MiddlewareConfig configures AuthMiddleware.
type MiddlewareConfig struct {
	// Verifier authenticates requests. nil disables authentication and the
	// middleware passes everything through (public access).
	Verifier *sigil.Verifier
	// AllowedMethods, when non-empty, admits only the listed request
	// methods. Checked before any signature work.
	AllowedMethods []string
	// AllowedContentTypes, when non-empty, admits only the listed media
	// types. Bodyless GETs are exempt: some clients stamp
	// application/octet-stream on GET requests that carry no body.
	AllowedContentTypes []string
	// Namespace overrides the xmlns on error documents.
	Namespace string
}

// AuthMiddleware enforces AWS Signature V4 authentication. Each request is
// assigned a request ID (reusing one already in context), admission-checked
// against the allowed methods and content types, then verified. On success
// the principal and auth context are bound into the request context and the
// inner handler runs exactly once; on any failure the inner handler never
// runs and the client gets an AWS-style XML error document.
func AuthMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Verifier == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	methods := make([]string, 0, len(cfg.AllowedMethods))
	for _, m := range cfg.AllowedMethods {
		methods = append(methods, strings.ToUpper(m))
	}

	contentTypes := make([]string, 0, len(cfg.AllowedContentTypes))
	for _, ct := range cfg.AllowedContentTypes {
		contentTypes = append(contentTypes, strings.ToLower(ct))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := RequestIDFromContext(ctx)
			if requestID == "" {
				requestID = sigil.NewRequestID(time.Now())
				ctx = withRequestID(ctx, requestID)
				w.Header().Set(requestIDHeader, requestID)
			}

			if len(methods) > 0 && !slices.Contains(methods, r.Method) {
				HandleError(w, cfg.Namespace, requestID,
					fmt.Errorf("request method %s is not allowed: %w", r.Method, sigil.ErrMethodNotAllowed))
				return
			}

			if err := checkContentType(r, contentTypes); err != nil {
				HandleError(w, cfg.Namespace, requestID, err)
				return
			}

			principal, err := cfg.Verifier.Verify(ctx, r)
			if err != nil {
				HandleError(w, cfg.Namespace, requestID, err)
				return
			}

			ctx = withPrincipal(ctx, principal)
			ctx = withAuthContext(ctx, sigil.AuthContext{
				Principal:  principal,
				SourceAddr: r.RemoteAddr,
				VerifiedAt: time.Now().UTC(),
				RequestID:  requestID,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// checkContentType admits requests whose media type is in allowed. Requests
// without a Content-Type header are not checked, and a GET that carries no
// body passes regardless of its declared type.
func checkContentType(r *http.Request, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	raw := r.Header.Get("Content-Type")
	if raw == "" {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		base, _, _ := strings.Cut(raw, ";")
		mediaType = strings.ToLower(strings.TrimSpace(base))
	}

	if slices.Contains(allowed, mediaType) {
		return nil
	}

	if r.Method == http.MethodGet && r.ContentLength <= 0 && len(r.TransferEncoding) == 0 {
		return nil
	}

	return fmt.Errorf("content type %s is not allowed: %w", mediaType, sigil.ErrContentTypeNotAllowed)
}

// RequestIDMiddleware assigns every request an ID carrying its arrival time
// and stamps it on the response. AuthMiddleware reuses the ID when present,
// so one ID ties the response header, the error document and the log line
// together.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sigil.NewRequestID(time.Now())
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}
