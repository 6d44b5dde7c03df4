package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gate/cmd/identity"
	authapi "gate/cmd/internal/auth/api"
	"gate/cmd/internal/auth/session"
	"gate/cmd/internal/notify"
	"gate/cmd/internal/verification"
	"gate/cmd/security/password"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "port only", in: ":8080", want: "http://127.0.0.1:8080"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func testConfig() Config {
	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Pepper = "test-pepper-0123456789"

	return Config{
		HTTPAddr:             "127.0.0.1:0",
		LogFormat:            "json",
		CORSAllowedOrigins:   []string{"http://localhost:3000"},
		CORSAllowCredentials: true,
		Auth: authapi.Config{
			MaxBodyBytes:         1 << 20,
			AppBaseURL:           "http://localhost:3000",
			TokenRequestDuration: 10 * time.Millisecond,
		},
		Session:      session.DefaultConfig(),
		Verification: verification.DefaultConfig(),
		Mail:         notify.Config{Provider: notify.ProviderConsole},
		Password:     pw,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestApp_HealthReadyAndMetrics(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for path, want := range map[string]string{"/healthz": "ok\n", "/readyz": "ready\n"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()
		if res.StatusCode != http.StatusOK || string(body) != want {
			t.Fatalf("GET %s: status=%d body=%q", path, res.StatusCode, body)
		}
		if res.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s: missing security headers", path)
		}
	}

	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if !strings.Contains(string(body), "gate_http_requests_total") {
		t.Fatalf("metrics output lacks http counters")
	}
}

func TestApp_ReadyzRequiresDB(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	a := newTestApp(t, cfg)

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without db, got %d", rr.Code)
	}
}

func TestApp_RegisterLoginUserRoundTrip(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	post := func(path, body string, cookies ...*http.Cookie) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		t.Cleanup(func() { _ = res.Body.Close() })
		return res
	}

	res := post("/api/auth/register", `{"email":"ada@example.com","password":"correct horse battery"}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", res.StatusCode)
	}

	res = post("/api/auth/login", `{"email":"ADA@example.com","password":"correct horse battery"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", res.StatusCode)
	}
	var sess *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == authapi.SessionCookieName {
			sess = c
		}
	}
	if sess == nil || sess.Value == "" {
		t.Fatalf("login did not set the session cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/user", nil)
	req.AddCookie(sess)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET user: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ada@example.com"`) {
		t.Fatalf("user: status=%d body=%s", res.StatusCode, body)
	}

	if res := post("/api/auth/logout", ``, sess); res.StatusCode/100 != 2 {
		t.Fatalf("logout: status %d", res.StatusCode)
	}
}

func TestApp_CORSAppliesToAuthRoutes(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("preflight: status=%d headers=%v", rr.Code, rr.Header())
	}
}

func TestApp_NewRejectsShortHMACKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.TokenHMACKey = "short"
	if _, err := New(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}

func TestApp_BootstrapAdmin(t *testing.T) {
	t.Parallel()

	users := identity.NewMemoryStore()
	u, err := users.CreateUser(context.Background(), identity.CreateUserInput{Email: "root@example.com", Now: time.Now()})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	cfg := testConfig()
	cfg.BootstrapAdminEmail = "Root@Example.com"
	a := &App{cfg: cfg, log: discardLogger(), users: users}
	if err := a.bootstrapAdmin(context.Background()); err != nil {
		t.Fatalf("bootstrapAdmin: %v", err)
	}

	got, err := users.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !identity.NewRoleSet(got.Roles...).Has(identity.RoleAdmin) {
		t.Fatalf("expected ADMIN role, got %v", got.Roles)
	}

	a.cfg.BootstrapAdminEmail = "nobody@example.com"
	if err := a.bootstrapAdmin(context.Background()); err != nil {
		t.Fatalf("absent account must be skipped, got %v", err)
	}
}
