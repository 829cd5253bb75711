// Package config loads service settings from the environment.
//
// Optional .env files are read first (".env.local" then ".env"); variables
// already set in the process environment always win, because godotenv never
// overrides them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Identity providers.
const (
	ProviderDev          = "dev"
	ProviderPasswordless = "passwordless"
)

// Config holds every setting the server reads at startup.
type Config struct {
	// --- HTTP ---
	Port               string   `envconfig:"PORT" default:"8080"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	CookieSecure       bool     `envconfig:"COOKIE_SECURE" default:"false"`

	// --- Logging ---
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// --- Database ---
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath      string `envconfig:"DB_PATH" default:"data/memeboard.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	// --- Sessions ---
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// --- Identity provider ---
	AuthProvider     string `envconfig:"AUTH_PROVIDER" default:"dev"`
	AuthDomain       string `envconfig:"AUTH_DOMAIN"`
	AuthClientID     string `envconfig:"AUTH_CLIENT_ID"`
	AuthClientSecret string `envconfig:"AUTH_CLIENT_SECRET"`

	// --- Login rate limiting (per client IP) ---
	LoginRatePerMinute int `envconfig:"LOGIN_RATE_PER_MINUTE" default:"10"`
	LoginBurst         int `envconfig:"LOGIN_BURST" default:"5"`
}

// Load reads optional .env files, then the environment, and validates.
func Load() (*Config, error) {
	loadDotEnv(".env.local", ".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.AuthProvider = strings.ToLower(strings.TrimSpace(cfg.AuthProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads each file that exists. Earlier files take precedence.
func loadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Validate checks cross-field rules envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
		if c.DBMaxConns <= 0 {
			errs = append(errs, errors.New("DB_MAX_CONNS must be > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver))
	}

	switch c.AuthProvider {
	case ProviderDev:
	case ProviderPasswordless:
		if c.AuthDomain == "" || c.AuthClientID == "" {
			errs = append(errs, errors.New("AUTH_DOMAIN and AUTH_CLIENT_ID are required for the passwordless provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_PROVIDER must be %q or %q, got %q", ProviderDev, ProviderPasswordless, c.AuthProvider))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.LoginRatePerMinute <= 0 || c.LoginBurst <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE and LOGIN_BURST must be > 0"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseLogLevel maps LOG_LEVEL to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// Addr is the listen address for Port.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
