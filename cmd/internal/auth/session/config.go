package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultTTL is the lifetime granted at creation and at every refresh.
	DefaultTTL = 30 * 24 * time.Hour
	// DefaultRefreshThreshold is the remaining lifetime at which a read extends the session.
	DefaultRefreshThreshold = 15 * 24 * time.Hour
	// DefaultTokenBytes is the entropy of a bearer token.
	DefaultTokenBytes = 32
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// TTL is the session lifetime.
	// Env: GATE_SESSION_TTL
	TTL time.Duration `env:"TTL"`

	// RefreshThreshold must not exceed TTL.
	// Env: GATE_SESSION_REFRESH_THRESHOLD
	RefreshThreshold time.Duration `env:"REFRESH_THRESHOLD"`

	// TokenBytes is the number of random bytes in a bearer token.
	// Env: GATE_SESSION_TOKEN_BYTES
	TokenBytes int `env:"TOKEN_BYTES"`
}

// DefaultConfig returns a 30 day session that slides once 15 days remain.
func DefaultConfig() Config {
	return Config{
		TTL:              DefaultTTL,
		RefreshThreshold: DefaultRefreshThreshold,
		TokenBytes:       DefaultTokenBytes,
	}
}

// LoadConfigFromEnv loads session configuration from GATE_SESSION_* variables.
// Durations use Go syntax ("720h"). Returns an error wrapping ErrConfig if invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GATE_SESSION_"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants between fields.
func (c Config) Validate() error {
	switch {
	case c.TTL <= 0:
		return fmt.Errorf("%w: ttl must be positive", ErrConfig)
	case c.RefreshThreshold < 0 || c.RefreshThreshold > c.TTL:
		return fmt.Errorf("%w: refresh threshold must be within [0, ttl]", ErrConfig)
	case c.TokenBytes < 32 || c.TokenBytes > 64:
		return fmt.Errorf("%w: token bytes must be within [32, 64]", ErrConfig)
	}
	return nil
}
