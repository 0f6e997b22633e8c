// Package config provides configuration loading and validation for sigil.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (SIGIL_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with SIGIL_ prefix:
//   - server.port → SIGIL_SERVER_PORT
//   - database.type → SIGIL_DATABASE_TYPE
//   - auth.region → SIGIL_AUTH_REGION
//
// # Configuration Structure
//
// The Config struct contains:
//   - Server: port and HTTP timeouts
//   - Auth: signing region/service, clock-skew tolerance, admission lists
//   - Resolver: credential backend (static/database/remote), cache and retry
//   - Database: type, DSN, and table names
//   - CORS: cross-origin resource sharing settings
//   - Log: logging level
//
// # Validation
//
// Configuration is validated using struct tags:
//   - Port must be 1-65535
//   - Resolver backend must be static, database, or remote
//   - Tolerance must be -1 or greater (-1 disables the freshness check)
//   - Log level must be debug, info, warn, or error
package config
