package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sagarc03/sigil"
)

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	Auth MiddlewareConfig
	CORS CORSConfig
	// Health reports backing-store health for /healthz. nil means liveness
	// only.
	Health func(ctx context.Context) error
	// Routes mounts the application's routes inside the authenticated
	// group. nil serves only the built-in endpoints.
	Routes func(r chi.Router)
}

// Handler provides the HTTP surface: health, the authenticated application
// routes and AWS-style error rendering.
type Handler struct {
	config HandlerConfig
}

// NewHandler creates a new Handler with the given configuration.
func NewHandler(config *HandlerConfig) *Handler {
	return &Handler{config: *config}
}

// Router returns an http.Handler with all routes configured. /healthz is
// served unauthenticated; every other path, matched or not, goes through
// AuthMiddleware, so probing for path existence requires valid credentials.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Get("/healthz", h.handleHealth)

	auth := AuthMiddleware(h.config.Auth)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/whoami", h.handleWhoAmI)
		if h.config.Routes != nil {
			h.config.Routes(r)
		}
	})

	// Group middleware does not run for unmatched paths, so the not-found
	// and wrong-method handlers are wrapped explicitly.
	r.NotFound(auth(http.HandlerFunc(h.handleNotFound)).ServeHTTP)
	r.MethodNotAllowed(auth(http.HandlerFunc(h.handleMethodNotAllowed)).ServeHTTP)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.Health != nil {
		if err := h.config.Health(r.Context()); err != nil {
			HandleError(w, h.config.Auth.Namespace, RequestIDFromContext(r.Context()),
				fmt.Errorf("health check: %v: %w", err, sigil.ErrStoreUnavailable))
			return
		}
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WhoAmIResponse reports the authenticated caller.
type WhoAmIResponse struct {
	Principal  string            `json:"principal"`
	Account    string            `json:"account,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	SourceAddr string            `json:"source_addr,omitempty"`
	VerifiedAt time.Time         `json:"verified_at"`
	RequestID  string            `json:"request_id"`
}

// handleWhoAmI reports the caller's identity, in the spirit of STS
// GetCallerIdentity.
func (h *Handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := AuthContextFromContext(r.Context())
	if !ok {
		HandleError(w, h.config.Auth.Namespace, RequestIDFromContext(r.Context()), sigil.ErrInternal)
		return
	}

	_ = WriteJSON(w, http.StatusOK, WhoAmIResponse{
		Principal:  authCtx.Principal.ID(),
		Account:    authCtx.Principal.Account(),
		Attributes: authCtx.Principal.Attributes(),
		SourceAddr: authCtx.SourceAddr,
		VerifiedAt: authCtx.VerifiedAt,
		RequestID:  authCtx.RequestID,
	})
}

// handleNotFound runs behind AuthMiddleware: an unauthenticated probe for
// an unknown path gets the same 403 as any other path.
func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, h.config.Auth.Namespace, RequestIDFromContext(r.Context()),
		http.StatusNotFound, "NotFound", "The requested resource was not found")
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	HandleError(w, h.config.Auth.Namespace, RequestIDFromContext(r.Context()),
		fmt.Errorf("no route accepts %s: %w", r.Method, sigil.ErrMethodNotAllowed))
}
