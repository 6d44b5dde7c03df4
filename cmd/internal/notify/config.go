package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderConsole = "console"
	ProviderResend  = "resend"
)

// Config selects and configures the mail provider.
type Config struct {
	// Env: GATE_MAIL_PROVIDER (console|resend)
	Provider string `env:"PROVIDER" envDefault:"console"`
	// Env: GATE_MAIL_FROM_EMAIL
	FromEmail string `env:"FROM_EMAIL" envDefault:"no-reply@example.com"`
	// Env: GATE_MAIL_FROM_NAME
	FromName string `env:"FROM_NAME" envDefault:"Gate"`
	// Env: GATE_MAIL_RESEND_API_KEY
	ResendAPIKey string `env:"RESEND_API_KEY"`
	// Env: GATE_MAIL_RESEND_BASE_URL
	ResendBaseURL string `env:"RESEND_BASE_URL"`
	// Env: GATE_MAIL_TIMEOUT
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// LoadConfigFromEnv reads GATE_MAIL_*.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GATE_MAIL_"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return cfg, nil
}

// NewMailer builds the configured Mailer.
func NewMailer(cfg Config, log *slog.Logger) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderConsole:
		return NewConsoleMailer(log), nil
	case ProviderResend:
		return NewResendMailer(cfg.ResendAPIKey, cfg.FromEmail, cfg.FromName, cfg.ResendBaseURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrConfig, cfg.Provider)
	}
}
