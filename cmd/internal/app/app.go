// Package app wires the Gate server runtime: config, logging, storage, and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gate/cmd/identity"
	authapi "gate/cmd/internal/auth/api"
	"gate/cmd/internal/auth/session"
	"gate/cmd/internal/notify"
	"gate/cmd/internal/verification"
)

// App is the Gate server runtime: it owns storage, services and the HTTP handler.
type App struct {
	cfg Config
	log Logger

	dbPool   *pgxpool.Pool
	registry *prometheus.Registry

	users   identity.Store
	handler http.Handler
}

// stores groups the three persistence backends selected together.
type stores struct {
	users         identity.Store
	sessions      session.Store
	verifications verification.Store
}

// New constructs a fully wired App instance from config and logger.
// An empty DatabaseURL selects in-memory stores.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}

	hasher, err := TokenHasher(cfg)
	if err != nil {
		return nil, err
	}
	if !hasher.Keyed() {
		log.Warn("security.token_hmac.disabled", "fallback", "sha256")
	}

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	a.users = st.users

	sessions, err := session.NewService(cfg.Session, st.sessions, hasher,
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(a.registry)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens, err := verification.NewService(cfg.Verification, st.verifications, hasher,
		verification.WithMetrics(verification.NewMetrics(a.registry)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	mailer, err := notify.NewMailer(cfg.Mail, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	dispatcher, err := notify.NewDispatcher(mailer, cfg.Auth.AppBaseURL, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	auth, err := authapi.NewHandler(cfg.Auth, authapi.Deps{
		Users:     st.users,
		Sessions:  sessions,
		Tokens:    tokens,
		Passwords: cfg.Password,
		Mail:      dispatcher,
		Log:       log,
		Metrics:   authapi.NewMetrics(a.registry),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.bootstrapAdmin(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.handler = a.routes(auth, NewMetrics(a.registry))
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", runtimeBaseURL(a.cfg.HTTPAddr),
		"db_enabled", a.dbPool != nil,
		"mail_provider", a.cfg.Mail.Provider,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		users := identity.NewMemoryStore()
		return stores{
			users:    users,
			sessions: session.NewMemoryStore(users),
			verifications: verification.NewMemoryStore(func(ctx context.Context, userID string) bool {
				_, err := users.GetUserByID(ctx, userID)
				return err == nil
			}),
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return stores{}, err
	}
	a.dbPool = pool

	if a.cfg.AutoMigrate {
		if err := MigrateDB(ctx, pool, a.cfg.DBSchema, a.log); err != nil {
			a.Close()
			return stores{}, err
		}
	}

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema))
	if err != nil {
		a.Close()
		return stores{}, err
	}
	sessions, err := session.NewPostgresStore(pool, a.cfg.DBSchema)
	if err != nil {
		a.Close()
		return stores{}, err
	}
	verifications, err := verification.NewPostgresStore(pool, verification.WithSchema(a.cfg.DBSchema))
	if err != nil {
		a.Close()
		return stores{}, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return stores{users: users, sessions: sessions, verifications: verifications}, nil
}

// bootstrapAdmin grants ADMIN to the configured account. A missing account is
// logged and skipped so the first deploy can start before anyone registers.
func (a *App) bootstrapAdmin(ctx context.Context) error {
	email := a.cfg.BootstrapAdminEmail
	if email == "" {
		return nil
	}
	u, err := a.users.GetUserByEmail(ctx, email)
	if identity.IsNotFound(err) {
		a.log.Warn("bootstrap.admin.absent", "email", email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if err := a.users.GrantRole(ctx, u.ID, identity.RoleAdmin); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	a.log.Info("bootstrap.admin.granted", "user_id", u.ID)
	return nil
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
