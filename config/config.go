package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/sigil/credstore"
	"github.com/sagarc03/sigil/database"
	sigilhttp "github.com/sagarc03/sigil/http"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for sigil.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Auth     AuthConfig           `mapstructure:"auth"`
	Resolver ResolverConfig       `mapstructure:"resolver"`
	Database database.Config      `mapstructure:"database"`
	CORS     sigilhttp.CORSConfig `mapstructure:"cors"`
	Log      LogConfig            `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration. Timeouts are in seconds.
type ServerConfig struct {
	Port            int `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     int `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    int `mapstructure:"write_timeout" validate:"min=0"`
	IdleTimeout     int `mapstructure:"idle_timeout" validate:"min=0"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout" validate:"min=1"`
}

// AuthConfig holds signature verification configuration.
type AuthConfig struct {
	Region  string `mapstructure:"region" validate:"required"`
	Service string `mapstructure:"service" validate:"required"`
	// Tolerance is the allowed clock skew in seconds, applied in both
	// directions. -1 disables the freshness check.
	Tolerance             int      `mapstructure:"tolerance" validate:"min=-1"`
	AllowedMethods        []string `mapstructure:"allowed_methods"`
	AllowedContentTypes   []string `mapstructure:"allowed_content_types"`
	RequiredSignedHeaders []string `mapstructure:"required_signed_headers"`
	S3URIRules            bool     `mapstructure:"s3_uri_rules"`
	// Namespace is the xmlns attribute on error documents.
	Namespace string `mapstructure:"namespace"`
}

// ResolverConfig selects the credential backend and its decorators.
type ResolverConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=static database remote"`
	// CacheTTL is the resolution cache lifetime in seconds; 0 disables
	// caching.
	CacheTTL  int `mapstructure:"cache_ttl" validate:"min=0"`
	CacheSize int `mapstructure:"cache_size" validate:"min=0"`
	// RetryAttempts is the total number of lookup tries including the
	// first; values below 2 disable retrying.
	RetryAttempts  int                  `mapstructure:"retry_attempts" validate:"min=0"`
	RetryBaseDelay int                  `mapstructure:"retry_base_delay" validate:"min=0"` // milliseconds
	Keys           credstore.KeysConfig `mapstructure:"keys"`
	Remote         RemoteConfig         `mapstructure:"remote"`
}

// RemoteConfig points the remote backend at a key service.
type RemoteConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Timeout  int    `mapstructure:"timeout" validate:"min=0"` // seconds
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type": "database.type",
	"db-dsn":  "database.dsn",
	"port":    "server.port",
	"region":  "auth.region",
	"service": "auth.service",
	"backend": "resolver.backend",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5998)
	v.SetDefault("server.read_timeout", 30) // seconds
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.shutdown_timeout", 30)

	v.SetDefault("auth.region", "us-east-1")
	v.SetDefault("auth.service", "execute-api")
	v.SetDefault("auth.tolerance", 300) // seconds
	v.SetDefault("auth.namespace", sigilhttp.DefaultNamespace)

	v.SetDefault("resolver.backend", "static")
	v.SetDefault("resolver.cache_ttl", 0) // 0 means no caching
	v.SetDefault("resolver.cache_size", 1024)
	v.SetDefault("resolver.retry_attempts", 2)
	v.SetDefault("resolver.retry_base_delay", 100) // milliseconds
	v.SetDefault("resolver.remote.timeout", 5)     // seconds

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "sigil.db")
	v.SetDefault("database.tables.credentials", "sigil_credentials")

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("SIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
