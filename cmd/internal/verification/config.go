package verification

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls token entropy and per-purpose lifetimes.
type Config struct {
	// Env: GATE_VERIFICATION_TOKEN_BYTES
	TokenBytes int `env:"TOKEN_BYTES"`

	// Env: GATE_VERIFICATION_EMAIL_VERIFY_TTL
	EmailVerifyTTL time.Duration `env:"EMAIL_VERIFY_TTL"`
	// Env: GATE_VERIFICATION_PASSWORD_RESET_TTL
	PasswordResetTTL time.Duration `env:"PASSWORD_RESET_TTL"`
	// Env: GATE_VERIFICATION_OTP_TTL
	OTPLoginTTL time.Duration `env:"OTP_TTL"`
}

// DefaultConfig returns 32-byte tokens living 24h (email), 1h (reset) and 15m (OTP).
func DefaultConfig() Config {
	return Config{
		TokenBytes:       32,
		EmailVerifyTTL:   24 * time.Hour,
		PasswordResetTTL: time.Hour,
		OTPLoginTTL:      15 * time.Minute,
	}
}

// LoadConfigFromEnv loads GATE_VERIFICATION_* on top of DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GATE_VERIFICATION_"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.TokenBytes < 32 || c.TokenBytes > 64 {
		return fmt.Errorf("%w: token bytes must be within [32, 64]", ErrConfig)
	}
	for _, p := range AllPurposes() {
		if ttl, _ := c.TTL(p); ttl <= 0 {
			return fmt.Errorf("%w: %s ttl must be positive", ErrConfig, p)
		}
	}
	return nil
}

// TTL returns the lifetime for purpose p.
func (c Config) TTL(p Purpose) (time.Duration, error) {
	switch p {
	case PurposeEmailVerify:
		return c.EmailVerifyTTL, nil
	case PurposePasswordReset:
		return c.PasswordResetTTL, nil
	case PurposeOTPLogin:
		return c.OTPLoginTTL, nil
	default:
		return 0, ErrInvalidInput
	}
}
