package authapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gate/cmd/identity"
)

func (h *Handler) handleAdminRevokeSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	n, err := h.sessions.InvalidateAllSessionsForUser(ctx, userID)
	if err != nil {
		h.fault(ctx, r, "auth.admin.revoke.fail", err)
		writeServerError(w)
		return
	}
	h.audit(ctx, r, evSessionsRevoked,
		slog.String("user_id", userID),
		slog.String("actor_id", mustPrincipal(r).UserID),
		slog.Int64("count", n),
	)
	writeJSON(w, http.StatusOK, revokeResponse{Revoked: n})
}

func (h *Handler) handleAdminGrantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRoleRequest
	if !h.bind(w, r, &req) {
		return
	}
	role, err := identity.ParseRoleName(req.Role)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{
			Code:    "validation_failed",
			Message: "request validation failed",
			Fields:  map[string]string{"role": "oneof"},
		}})
		return
	}

	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	err = h.users.GrantRole(ctx, userID, role)
	switch {
	case err == nil:
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	case identity.IsMisconfigured(err):
		h.fault(ctx, r, "auth.admin.grant_role.role_missing", err)
		writeServerError(w)
		return
	default:
		h.fault(ctx, r, "auth.admin.grant_role.fail", err)
		writeServerError(w)
		return
	}

	h.audit(ctx, r, evRoleGranted,
		slog.String("user_id", userID),
		slog.String("actor_id", mustPrincipal(r).UserID),
		slog.String("role", string(role)),
	)
	w.WriteHeader(http.StatusNoContent)
}
