package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gate/cmd/identity"
	"gate/cmd/internal/verification"
	"gate/cmd/security/password"
)

// handlePasswordUpdate rotates the password of the signed-in user. Every session of the
// user is revoked and a fresh one is issued to the caller.
func (h *Handler) handlePasswordUpdate(w http.ResponseWriter, r *http.Request) {
	var req passwordUpdateRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	u, err := h.users.GetUserByID(ctx, p.UserID)
	if err != nil {
		h.fault(ctx, r, "auth.password.lookup.fail", err)
		writeServerError(w)
		return
	}
	if !u.HasPassword() {
		writeError(w, http.StatusBadRequest, "password_not_set", "no password is set for this account")
		return
	}

	ok, err := h.passwords.Verify(*u.PasswordHash, req.CurrentPassword)
	if errors.Is(err, password.ErrPepperMissing) {
		h.fault(ctx, r, "auth.password.verify.fail", err)
		writeServerError(w)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_current_password", "current password is incorrect")
		return
	}
	if err := h.passwords.Validate(req.NewPassword); err != nil {
		writePolicyError(w, "newPassword", err)
		return
	}

	if !h.replacePassword(ctx, w, r, u.ID, req.NewPassword) {
		return
	}
	if !h.startSession(ctx, w, r, u.ID) {
		return
	}
	h.audit(ctx, r, evPasswordChanged, slog.String("user_id", u.ID))
	writeJSON(w, http.StatusOK, messageResponse{Message: "auth.profile.password_update_success"})
}

// replacePassword stores a new hash, drops any pending reset token and
// revokes every session of userID. On failure it writes a 500 and returns false.
func (h *Handler) replacePassword(ctx context.Context, w http.ResponseWriter, r *http.Request, userID, pw string) bool {
	hash, err := h.passwords.Hash(pw)
	if err != nil {
		h.fault(ctx, r, "auth.password.hash.fail", err)
		writeServerError(w)
		return false
	}
	if err := h.users.SetPasswordHash(ctx, userID, hash, h.now()); err != nil {
		h.fault(ctx, r, "auth.password.store.fail", err)
		writeServerError(w)
		return false
	}
	if err := h.tokens.Discard(ctx, userID, verification.PurposePasswordReset); err != nil {
		h.fault(ctx, r, "auth.password.reset_discard.fail", err)
		writeServerError(w)
		return false
	}
	n, err := h.sessions.InvalidateAllSessionsForUser(ctx, userID)
	if err != nil {
		h.fault(ctx, r, "auth.password.revoke.fail", err)
		writeServerError(w)
		return false
	}
	h.audit(ctx, r, evSessionsRevoked, slog.String("user_id", userID), slog.Int64("count", n))
	return true
}

func (h *Handler) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	res, err := h.users.UpdateProfile(ctx, identity.UpdateProfileInput{
		UserID: p.UserID,
		Name:   req.Name,
		Email:  req.Email,
		Now:    h.now(),
	})
	switch {
	case err == nil:
	case identity.IsConflict(err):
		writeError(w, http.StatusConflict, "email_taken", "An account with this email already exists.")
		return
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid profile data")
		return
	default:
		h.fault(ctx, r, "auth.profile.update.fail", err)
		writeServerError(w)
		return
	}
	h.audit(ctx, r, evProfileUpdated, slog.String("user_id", p.UserID), slog.Bool("email_changed", res.EmailChanged))

	msg := "auth.profile.update_success"
	if res.EmailChanged {
		msg = "auth.profile.verification_email_sent"
		if err := h.sendEmailVerification(ctx, res.User.ID, res.User.Email, res.User.Name); err != nil {
			h.log.LogAttrs(ctx, slog.LevelWarn, "auth.profile.verification_mail.fail",
				slog.String("user_id", res.User.ID), slog.Any("err", err))
			msg = "auth.profile.update_success"
		}
	}
	writeJSON(w, http.StatusOK, profileResponse{User: toUserResponse(identity.Project(res.User)), Message: msg})
}

func (h *Handler) handleSendVerificationMail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	if p.EmailVerified {
		writeError(w, http.StatusBadRequest, "already_verified", "email is already verified")
		return
	}

	if err := h.sendEmailVerification(ctx, p.UserID, p.Email, p.Name); err != nil {
		h.fault(ctx, r, "auth.verification_mail.fail", err)
		writeError(w, http.StatusInternalServerError, "verification_email_error", "could not send verification email")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "auth.profile.verification_email_sent"})
}

func (h *Handler) sendEmailVerification(ctx context.Context, userID, email string, name *string) error {
	_, err := h.tokens.IssueAndNotify(ctx, h.now(), userID, verification.PurposeEmailVerify, h.mail.NotifierFor(email, name))
	if err != nil {
		h.metrics.inc(evNotifyFailed)
		return err
	}
	h.audit(ctx, nil, evVerificationSent, slog.String("user_id", userID))
	return nil
}
