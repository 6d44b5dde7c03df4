package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	authapi "gate/cmd/internal/auth/api"
	"gate/cmd/internal/auth/session"
	"gate/cmd/internal/notify"
	"gate/cmd/internal/verification"
	"gate/cmd/security/password"
)

// EnvPrefix is prepended to every variable read by LoadConfig.
const EnvPrefix = "GATE_"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json|text|pretty

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// Empty DatabaseURL selects the in-memory stores.
	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA" envDefault:"gate"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// If true, /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB"`

	// TokenHMACKey keys the digests of session and verification tokens.
	TokenHMACKey string `env:"TOKEN_HMAC_KEY"`
	// If true, TokenHMACKey MUST be set (>= 32 bytes).
	RequireTokenHMAC bool `env:"REQUIRE_TOKEN_HMAC"`

	// Production forces Secure cookies and keyed token digests.
	Production bool `env:"PRODUCTION"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS" envDefault:"600"`

	// BootstrapAdminEmail is granted ADMIN at startup when the account exists.
	BootstrapAdminEmail string `env:"BOOTSTRAP_ADMIN_EMAIL"`

	Auth         authapi.Config      `env:"-"`
	Session      session.Config      `env:"-"`
	Verification verification.Config `env:"-"`
	Mail         notify.Config       `env:"-"`
	Password     password.Config     `env:"-"`
}

// LoadConfig loads Config and every component config from GATE_* variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("app config: %w", err)
	}

	var err error
	if cfg.Auth, err = authapi.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Session, err = session.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Verification, err = verification.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Mail, err = notify.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Password, err = password.FromEnv(); err != nil {
		return Config{}, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DBSchema = strings.TrimSpace(c.DBSchema)
	c.BootstrapAdminEmail = strings.TrimSpace(c.BootstrapAdminEmail)

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins

	if c.Production {
		c.Auth.CookieSecure = true
		c.RequireTokenHMAC = true
	}
}

// Validate reports inconsistent settings that would otherwise surface on first request.
func (c Config) Validate() error {
	var errs []error
	switch c.LogFormat {
	case "", "json", "text", "pretty":
	default:
		errs = append(errs, fmt.Errorf("app config: unknown log format %q", c.LogFormat))
	}
	if c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		errs = append(errs, fmt.Errorf("app config: db min conns %d out of range", c.DBMinConns))
	}
	if c.CORSMaxAgeSeconds < 0 {
		errs = append(errs, errors.New("app config: cors max age must not be negative"))
	}
	if c.Production && c.Mail.Provider == notify.ProviderConsole {
		errs = append(errs, errors.New("app config: console mail provider is not allowed in production"))
	}
	if err := c.Password.CheckPepper(); err != nil {
		errs = append(errs, fmt.Errorf("app config: %w", err))
	}
	return errors.Join(errs...)
}
