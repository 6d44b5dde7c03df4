package authapi

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// SessionCookieName is the one cookie that carries the bearer token. Every endpoint
// that sets or reads the session uses it.
const SessionCookieName = "auth_session_token"

// Config controls auth API transport behavior.
type Config struct {
	// Env: GATE_AUTH_TRUST_PROXY
	TrustProxy bool `env:"TRUST_PROXY"`
	// Env: GATE_AUTH_MAX_BODY_BYTES
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	// CookieSecure sets the Secure attribute. Forced on in production.
	// Env: GATE_AUTH_COOKIE_SECURE
	CookieSecure bool `env:"COOKIE_SECURE"`
	// AppBaseURL is the frontend origin used for redirects after link-based sign-in.
	// Env: GATE_AUTH_APP_BASE_URL
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	// TokenRequestDuration is how long forgot-password and OTP requests take to answer,
	// whether or not the account exists. It should exceed typical store plus mail latency.
	// Env: GATE_AUTH_TOKEN_REQUEST_DURATION
	TokenRequestDuration time.Duration `env:"TOKEN_REQUEST_DURATION" envDefault:"1500ms"`
}

// LoadConfigFromEnv reads GATE_AUTH_*.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GATE_AUTH_"}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the body limit and base url.
func (c Config) Validate() error {
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("auth config: max body bytes must be positive")
	}
	if c.TokenRequestDuration <= 0 {
		return fmt.Errorf("auth config: token request duration must be positive")
	}
	u, err := url.Parse(strings.TrimSpace(c.AppBaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("auth config: invalid app base url %q", c.AppBaseURL)
	}
	return nil
}

func (c Config) appURL(path string, query url.Values) string {
	u, _ := url.Parse(strings.TrimRight(strings.TrimSpace(c.AppBaseURL), "/"))
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
