package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"gate/cmd/identity"
	"gate/cmd/internal/verification"
)

// Responses of the enumeration-sensitive endpoints do not depend on whether the
// account exists or whether delivery succeeded.
var (
	otpRequestedResponse   = messageResponse{Message: "OK"}
	resetRequestedResponse = messageResponse{Message: "auth.password.reset_email_sent"}
	resetCompletedResponse = messageResponse{Message: "auth.password.reset_success"}
)

const (
	emailVerifySuccessText  = "auth.email.verify_success"
	invalidVerificationText = "verification link is invalid or has expired"
)

func (h *Handler) handleEmailVerify(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := r.Context()

	userID, ok := h.consume(ctx, w, r, verification.PurposeEmailVerify, req.Token)
	if !ok {
		return
	}

	err := h.users.MarkEmailVerified(ctx, userID, h.now())
	if identity.IsNotFound(err) {
		writeError(w, http.StatusBadRequest, "invalid_token", invalidVerificationText)
		return
	}
	if err != nil {
		h.fault(ctx, r, "auth.email.verify.fail", err)
		writeServerError(w)
		return
	}
	u, err := h.users.GetUserByID(ctx, userID)
	if err != nil {
		h.fault(ctx, r, "auth.email.verify.lookup.fail", err)
		writeServerError(w)
		return
	}

	if !h.startSession(ctx, w, r, userID) {
		return
	}
	h.audit(ctx, r, evEmailVerified, slog.String("user_id", userID))
	writeJSON(w, http.StatusOK, emailVerifiedResponse{Success: true, Message: emailVerifySuccessText, Email: u.Email})
}

func (h *Handler) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	h.requestToken(w, r, verification.PurposeOTPLogin, evOTPRequested, otpRequestedResponse)
}

func (h *Handler) handlePasswordForgot(w http.ResponseWriter, r *http.Request) {
	h.requestToken(w, r, verification.PurposePasswordReset, evResetRequested, resetRequestedResponse)
}

// requestToken issues and mails a token when the account exists. The response is
// identical whether or not it does, and whether or not delivery succeeds.
//
// The lookup, issue and delivery run detached from the response, which is written once
// TokenRequestDuration has elapsed on both branches. Work that outlives the window keeps
// running under tokenRequestTimeout.
func (h *Handler) requestToken(w http.ResponseWriter, r *http.Request, purpose verification.Purpose, event string, resp messageResponse) {
	var req emailRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := r.Context()

	window := time.NewTimer(h.cfg.TokenRequestDuration)
	defer window.Stop()

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenRequestTimeout)
	detached := r.Clone(bg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		h.issueForEmail(bg, detached, req.Email, purpose, event)
	}()

	select {
	case <-done:
		select {
		case <-window.C:
		case <-ctx.Done():
			return
		}
	case <-window.C:
		h.log.LogAttrs(ctx, slog.LevelWarn, "auth.token_request.slow",
			slog.String("purpose", string(purpose)), slog.Duration("window", h.cfg.TokenRequestDuration))
	case <-ctx.Done():
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// tokenRequestTimeout bounds the detached work of requestToken.
const tokenRequestTimeout = 30 * time.Second

func (h *Handler) issueForEmail(ctx context.Context, r *http.Request, email string, purpose verification.Purpose, event string) {
	u, err := h.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		_, err = h.tokens.IssueAndNotify(ctx, h.now(), u.ID, purpose, h.mail.NotifierFor(u.Email, u.Name))
		if err != nil {
			h.metrics.inc(evNotifyFailed)
			h.log.LogAttrs(ctx, slog.LevelError, "auth.token_request.fail",
				slog.String("purpose", string(purpose)), slog.String("user_id", u.ID), slog.Any("err", err))
		} else {
			h.audit(ctx, r, event, slog.String("user_id", u.ID))
		}
	case identity.IsNotFound(err):
		h.tokens.Decoy(purpose)
		h.audit(ctx, r, evUnknownAccount, slog.String("purpose", string(purpose)))
	default:
		h.log.LogAttrs(ctx, slog.LevelError, "auth.token_request.lookup.fail",
			slog.String("purpose", string(purpose)), slog.Any("err", err))
	}
}

// handleOTPVerify is the target of the emailed sign-in link. It always answers with a
// redirect to the application: home on success, the login page with an error otherwise.
func (h *Handler) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fail := func(code string) {
		http.Redirect(w, r, h.cfg.appURL("/login", url.Values{"error": {code}}), http.StatusFound)
	}

	tok := r.URL.Query().Get("token")
	if tok == "" {
		fail("otp_invalid")
		return
	}

	userID, err := h.tokens.Consume(ctx, h.now(), verification.PurposeOTPLogin, tok)
	if errors.Is(err, verification.ErrInvalidToken) {
		h.audit(ctx, r, evOTPRejected)
		fail("otp_expired")
		return
	}
	if err != nil {
		h.fault(ctx, r, "auth.otp.consume.fail", err)
		fail("server_error")
		return
	}

	issued, err := h.sessions.CreateSession(ctx, h.now(), userID)
	if err != nil {
		h.fault(ctx, r, evSessionIssueError, err)
		fail("server_error")
		return
	}
	h.setSessionCookie(w, issued.Token)
	h.audit(ctx, r, evOTPLogin, slog.String("user_id", userID))
	http.Redirect(w, r, h.cfg.appURL("/", nil), http.StatusFound)
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.passwords.Validate(req.NewPassword); err != nil {
		writePolicyError(w, "newPassword", err)
		return
	}
	ctx := r.Context()

	userID, ok := h.consume(ctx, w, r, verification.PurposePasswordReset, req.Token)
	if !ok {
		return
	}
	if !h.replacePassword(ctx, w, r, userID, req.NewPassword) {
		return
	}
	h.audit(ctx, r, evPasswordReset, slog.String("user_id", userID))
	writeJSON(w, http.StatusOK, resetCompletedResponse)
}

// consume redeems a token, writing 400 for any invalid token and 500 for storage faults.
func (h *Handler) consume(ctx context.Context, w http.ResponseWriter, r *http.Request, purpose verification.Purpose, tok string) (string, bool) {
	userID, err := h.tokens.Consume(ctx, h.now(), purpose, tok)
	if errors.Is(err, verification.ErrInvalidToken) {
		h.audit(ctx, r, evTokenRejected, slog.String("purpose", string(purpose)))
		writeError(w, http.StatusBadRequest, "invalid_token", invalidVerificationText)
		return "", false
	}
	if err != nil {
		h.fault(ctx, r, "auth.token.consume.fail", err)
		writeServerError(w)
		return "", false
	}
	return userID, true
}
