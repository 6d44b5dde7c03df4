package authapi

import (
	"net/http"
	"strings"
	"time"

	"gate/cmd/security/token"
)

func (h *Handler) setSessionCookie(w http.ResponseWriter, bearer string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    bearer,
		Path:     "/",
		MaxAge:   int(h.sessions.Config().TTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionToken returns the bearer token from the session cookie.
func sessionToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" || len(v) > token.MaxEncodedLen {
		return "", false
	}
	return v, true
}
