package app

import (
	"strings"
	"testing"

	"gate/cmd/internal/notify"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GATE_AUTH_PEPPER", "pepper-pepper-pepper")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.DBSchema != "gate" || !cfg.AutoMigrate {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Mail.Provider != notify.ProviderConsole {
		t.Fatalf("mail provider=%q", cfg.Mail.Provider)
	}
	if cfg.Session.TTL <= 0 || cfg.Verification.OTPLoginTTL <= 0 {
		t.Fatalf("component configs not loaded: %+v %+v", cfg.Session, cfg.Verification)
	}
}

func TestLoadConfig_OriginsAndFormat(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATE_CORS_ALLOWED_ORIGINS", " https://a.example.com/ ,,http://127.0.0.1:*")
	t.Setenv("GATE_LOG_FORMAT", "Pretty")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := []string{"https://a.example.com", "http://127.0.0.1:*"}
	if strings.Join(cfg.CORSAllowedOrigins, "|") != strings.Join(want, "|") {
		t.Fatalf("origins=%q want %q", cfg.CORSAllowedOrigins, want)
	}
	if cfg.LogFormat != "pretty" {
		t.Fatalf("log format=%q", cfg.LogFormat)
	}
}

func TestLoadConfig_ProductionHardening(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATE_PRODUCTION", "true")
	t.Setenv("GATE_MAIL_PROVIDER", "resend")
	t.Setenv("GATE_MAIL_RESEND_API_KEY", "re_test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Auth.CookieSecure || !cfg.RequireTokenHMAC {
		t.Fatalf("production must force secure cookies and hmac: %+v", cfg)
	}

	t.Setenv("GATE_MAIL_PROVIDER", "console")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("console mail must be refused in production")
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing pepper": {"GATE_AUTH_PEPPER": ""},
		"bad log format": {"GATE_LOG_FORMAT": "xml"},
		"min over max":   {"GATE_DB_MAX_CONNS": "2", "GATE_DB_MIN_CONNS": "5"},
		"bad duration":   {"GATE_HTTP_READ_TIMEOUT": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTokenHasher_Policy(t *testing.T) {
	t.Parallel()

	key := strings.Repeat("k", MinTokenHMACKeyBytes)

	h, err := TokenHasher(Config{})
	if err != nil || h.Keyed() {
		t.Fatalf("no key, no policy: keyed=%v err=%v", h.Keyed(), err)
	}
	if _, err := TokenHasher(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("required hmac without key must fail")
	}
	if _, err := TokenHasher(Config{TokenHMACKey: "short"}); err == nil {
		t.Fatalf("short key must fail")
	}
	h, err = TokenHasher(Config{TokenHMACKey: key, RequireTokenHMAC: true})
	if err != nil || !h.Keyed() {
		t.Fatalf("keyed=%v err=%v", h.Keyed(), err)
	}
}
