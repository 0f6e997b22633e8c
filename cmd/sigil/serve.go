package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/sigil"
	"github.com/sagarc03/sigil/config"
	"github.com/sagarc03/sigil/credstore"
	"github.com/sagarc03/sigil/database"
	sigilhttp "github.com/sagarc03/sigil/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication gateway",
	Long:  `Start the sigil HTTP server.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5998, "HTTP server port")
	serveCmd.Flags().String("region", "us-east-1", "signing region requests must be scoped to")
	serveCmd.Flags().String("service", "execute-api", "signing service requests must be scoped to")
	serveCmd.Flags().String("backend", "static", "credential backend: static, database, remote")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	resolver, health, cleanup, err := buildResolver(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	verifier := sigil.NewVerifier(sigil.VerifierConfig{
		Region:                cfg.Auth.Region,
		Service:               cfg.Auth.Service,
		Tolerance:             time.Duration(cfg.Auth.Tolerance) * time.Second,
		RequiredSignedHeaders: cfg.Auth.RequiredSignedHeaders,
		Options:               sigil.SignatureOptions{S3URIRules: cfg.Auth.S3URIRules},
	}, resolver)

	handlerConfig := sigilhttp.HandlerConfig{
		Auth: sigilhttp.MiddlewareConfig{
			Verifier:            verifier,
			AllowedMethods:      cfg.Auth.AllowedMethods,
			AllowedContentTypes: cfg.Auth.AllowedContentTypes,
			Namespace:           cfg.Auth.Namespace,
		},
		CORS:   cfg.CORS,
		Health: health,
	}

	handler := sigilhttp.NewHandler(&handlerConfig)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		cancel()
	}()

	slog.Info("starting server",
		"addr", addr,
		"region", cfg.Auth.Region,
		"service", cfg.Auth.Service,
		"backend", cfg.Resolver.Backend,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// buildResolver constructs the credential backend selected by config and
// wraps it with the retry and cache decorators. The returned health func is
// non-nil only for backends that can be pinged.
func buildResolver(ctx context.Context, cfg *config.Config) (sigil.CredentialResolver, func(context.Context) error, func(), error) {
	var (
		resolver sigil.CredentialResolver
		health   func(context.Context) error
		cleanup  = func() {}
	)

	switch cfg.Resolver.Backend {
	case "static":
		static, err := credstore.NewStaticFromConfig(cfg.Resolver.Keys)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load static keys: %w", err)
		}
		if static.Len() == 0 {
			slog.Warn("static backend has no usable keys; every request will be rejected")
		}
		slog.Info("loaded static credentials", "keys", static.Len())
		resolver = static

	case "database":
		store, closeStore, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect database: %w", err)
		}
		slog.Info("connected to credential store", "type", cfg.Database.Type, "table", cfg.Database.Tables.Credentials)
		resolver = store
		health = store.Ping
		cleanup = closeStore

	case "remote":
		if cfg.Resolver.Remote.Endpoint == "" {
			return nil, nil, nil, errors.New("remote backend requires resolver.remote.endpoint")
		}
		slog.Info("using remote credential service", "endpoint", cfg.Resolver.Remote.Endpoint)
		resolver = credstore.NewRemote(credstore.RemoteConfig{
			Endpoint: cfg.Resolver.Remote.Endpoint,
			Timeout:  time.Duration(cfg.Resolver.Remote.Timeout) * time.Second,
		})

	default:
		return nil, nil, nil, fmt.Errorf("unsupported resolver backend: %s", cfg.Resolver.Backend)
	}

	if cfg.Resolver.RetryAttempts > 1 {
		resolver = credstore.WithRetry(resolver, credstore.RetryConfig{
			Attempts:  uint(cfg.Resolver.RetryAttempts),
			BaseDelay: time.Duration(cfg.Resolver.RetryBaseDelay) * time.Millisecond,
		})
	}

	if cfg.Resolver.CacheTTL > 0 {
		resolver = credstore.WithCache(resolver,
			time.Duration(cfg.Resolver.CacheTTL)*time.Second, cfg.Resolver.CacheSize)
	}

	return resolver, health, cleanup, nil
}
