package authapi

import (
	"context"
	"log/slog"
	"net/http"

	"gate/cmd/identity"
)

type sessionIDKey struct{}

func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// Authenticate resolves the session cookie and attaches the owner's principal to the
// request context. Anonymous requests pass through untouched; a stale cookie is cleared.
// Storage faults end the request with 500.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := sessionToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		v, err := h.sessions.ValidateToken(ctx, h.now(), bearer)
		if err != nil {
			h.log.LogAttrs(ctx, slog.LevelError, "auth.session.validate.fail", slog.Any("err", err))
			writeServerError(w)
			return
		}
		if !v.Valid() {
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		if v.Refreshed {
			h.setSessionCookie(w, bearer)
		}

		ctx = identity.WithPrincipal(ctx, v.Principal())
		ctx = context.WithValue(ctx, sessionIDKey{}, v.Session.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.PrincipalFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects anonymous requests with 401 and principals lacking role with 403.
func RequireRole(role identity.RoleName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if !p.HasRole(role) {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mustPrincipal(r *http.Request) identity.Principal {
	p, _ := identity.PrincipalFromContext(r.Context())
	return p
}
