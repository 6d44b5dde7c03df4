package authapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gate/cmd/identity"
	"gate/cmd/internal/auth/session"
	"gate/cmd/internal/notify"
	"gate/cmd/internal/verification"
	"gate/cmd/security/password"
)

// Deps are the collaborators of Handler. All fields except Log, Metrics and Now are required.
type Deps struct {
	Users     identity.Store
	Sessions  *session.Service
	Tokens    *verification.Service
	Passwords password.Config
	Mail      *notify.Dispatcher

	Log     *slog.Logger
	Metrics *Metrics
	Now     func() time.Time
}

// Handler wires HTTP auth endpoints to the identity, session and verification services.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	metrics *Metrics
	now     func() time.Time

	users     identity.Store
	sessions  *session.Service
	tokens    *verification.Service
	passwords password.Config
	mail      *notify.Dispatcher

	// dummyHash is verified against when the account does not exist,
	// so unknown emails cost the same as wrong passwords.
	dummyHash string
}

// NewHandler validates deps and precomputes the timing-equalization hash.
// A missing pepper is reported here, at startup, rather than on first login.
func NewHandler(cfg Config, d Deps) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case d.Users == nil:
		return nil, errors.New("auth: nil user store")
	case d.Sessions == nil:
		return nil, errors.New("auth: nil session service")
	case d.Tokens == nil:
		return nil, errors.New("auth: nil verification service")
	case d.Mail == nil:
		return nil, errors.New("auth: nil mail dispatcher")
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	dummy, err := d.Passwords.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}

	return &Handler{
		log:       d.Log,
		cfg:       cfg,
		metrics:   d.Metrics,
		now:       func() time.Time { return d.Now().UTC() },
		users:     d.Users,
		sessions:  d.Sessions,
		tokens:    d.Tokens,
		passwords: d.Passwords,
		mail:      d.Mail,
		dummyHash: dummy,
	}, nil
}

// Routes returns the auth router. Authenticate runs for every route in it.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.Authenticate)

	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/user", h.handleUser)

	r.Post("/email/verify", h.handleEmailVerify)
	r.Post("/otp/request", h.handleOTPRequest)
	r.Get("/otp/verify", h.handleOTPVerify)
	r.Post("/password/forgot", h.handlePasswordForgot)
	r.Post("/password/reset", h.handlePasswordReset)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Put("/password", h.handlePasswordUpdate)
		r.Put("/profile", h.handleProfileUpdate)
		r.Post("/send-verification-mail", h.handleSendVerificationMail)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRole(identity.RoleAdmin))
		r.Post("/users/{userID}/sessions/revoke", h.handleAdminRevokeSessions)
		r.Post("/users/{userID}/roles", h.handleAdminGrantRole)
	})

	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.passwords.Validate(req.Password); err != nil {
		writePolicyError(w, "password", err)
		return
	}

	ctx := r.Context()
	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		h.fault(ctx, r, "auth.register.hash.fail", err)
		writeServerError(w)
		return
	}

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        req.Email,
		Name:         identity.NormalizeName(req.Name),
		PasswordHash: &hash,
		Now:          h.now(),
	})
	switch {
	case err == nil:
	case identity.IsConflict(err):
		h.audit(ctx, r, evRegisterConflict)
		writeError(w, http.StatusConflict, "email_taken", "An account with this email already exists.")
		return
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid registration data")
		return
	default:
		h.fault(ctx, r, "auth.register.create.fail", err)
		writeServerError(w)
		return
	}

	h.audit(ctx, r, evRegister, slog.String("user_id", u.ID))
	if err := h.sendEmailVerification(ctx, u.ID, u.Email, u.Name); err != nil {
		h.log.LogAttrs(ctx, slog.LevelWarn, "auth.register.verification_mail.fail",
			slog.String("user_id", u.ID), slog.Any("err", err))
	}

	writeJSON(w, http.StatusCreated, registerResponse{Message: "User registered successfully", UserID: u.ID})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := r.Context()

	u, err := h.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.fault(ctx, r, "auth.login.lookup.fail", err)
			writeServerError(w)
			return
		}
		_, _ = h.passwords.Verify(h.dummyHash, req.Password)
		h.audit(ctx, r, evLoginFailed, slog.String("reason", "not_found"))
		writeInvalidCredentials(w)
		return
	}

	if !u.HasPassword() {
		_, _ = h.passwords.Verify(h.dummyHash, req.Password)
		h.audit(ctx, r, evLoginFailed, slog.String("user_id", u.ID), slog.String("reason", "password_login_disabled"))
		writeError(w, http.StatusUnauthorized, "password_login_disabled", "Password login not enabled for this account.")
		return
	}

	ok, err := h.passwords.Verify(*u.PasswordHash, req.Password)
	if errors.Is(err, password.ErrPepperMissing) {
		h.fault(ctx, r, "auth.login.verify.fail", err)
		writeServerError(w)
		return
	}
	if !ok {
		h.audit(ctx, r, evLoginFailed, slog.String("user_id", u.ID), slog.String("reason", "bad_password"))
		writeInvalidCredentials(w)
		return
	}

	if h.passwords.NeedsRehash(*u.PasswordHash) {
		h.rehash(ctx, r, u.ID, req.Password)
	}

	if !h.startSession(ctx, w, r, u.ID) {
		return
	}
	h.audit(ctx, r, evLoginSuccess, slog.String("user_id", u.ID))
	writeJSON(w, http.StatusOK, toUserResponse(identity.Project(u)))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if bearer, ok := sessionToken(r); ok {
		if err := h.sessions.InvalidateToken(ctx, bearer); err != nil {
			h.log.LogAttrs(ctx, slog.LevelError, "auth.logout.invalidate.fail", slog.Any("err", err))
		}
	}
	if p, ok := identity.PrincipalFromContext(ctx); ok {
		h.audit(ctx, r, evLogout, slog.String("user_id", p.UserID))
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(p))
}

// startSession creates a session for userID and sets the cookie.
// On failure it writes a 500 and returns false.
func (h *Handler) startSession(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) bool {
	issued, err := h.sessions.CreateSession(ctx, h.now(), userID)
	if err != nil {
		h.fault(ctx, r, evSessionIssueError, err)
		writeServerError(w)
		return false
	}
	h.setSessionCookie(w, issued.Token)
	return true
}

func (h *Handler) rehash(ctx context.Context, r *http.Request, userID, pw string) {
	hash, err := h.passwords.Hash(pw)
	if err == nil {
		err = h.users.SetPasswordHash(ctx, userID, hash, h.now())
	}
	if err != nil {
		h.log.LogAttrs(ctx, slog.LevelWarn, "auth.password.rehash.fail", slog.String("user_id", userID), slog.Any("err", err))
		return
	}
	h.audit(ctx, r, evPasswordRehashed, slog.String("user_id", userID))
}

// fault logs an internal error with full detail; the caller answers with a generic 500.
func (h *Handler) fault(ctx context.Context, r *http.Request, msg string, err error) {
	attrs := []slog.Attr{slog.String("path", r.URL.Path), slog.Any("err", err)}
	if identity.IsMisconfigured(err) || errors.Is(err, password.ErrPepperMissing) {
		h.metrics.inc(evMisconfigured)
		attrs = append(attrs, slog.Bool("misconfigured", true))
	}
	h.log.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func writeInvalidCredentials(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
}

func writePolicyError(w http.ResponseWriter, field string, err error) {
	tag := "invalid"
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		tag = "min"
	case errors.Is(err, password.ErrPasswordTooLong):
		tag = "max"
	case errors.Is(err, password.ErrWeakPassword):
		tag = "weak"
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{
		Code:    "validation_failed",
		Message: "request validation failed",
		Fields:  map[string]string{field: tag},
	}})
}
