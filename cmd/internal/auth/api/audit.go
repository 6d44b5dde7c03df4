package authapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit event names.
const (
	evRegister          = "auth.register"
	evRegisterConflict  = "auth.register.conflict"
	evLoginSuccess      = "auth.login.success"
	evLoginFailed       = "auth.login.failed"
	evLogout            = "auth.logout"
	evPasswordChanged   = "auth.password.changed"
	evPasswordReset     = "auth.password.reset"
	evResetRequested    = "auth.password.reset_requested"
	evEmailVerified     = "auth.email.verified"
	evOTPRequested      = "auth.otp.requested"
	evOTPLogin          = "auth.otp.login"
	evOTPRejected       = "auth.otp.rejected"
	evSessionsRevoked   = "auth.sessions.revoked"
	evRoleGranted       = "auth.role.granted"
	evNotifyFailed      = "auth.notify.failed"
	evProfileUpdated    = "auth.profile.updated"
	evVerificationSent  = "auth.email.verification_sent"
	evPasswordRehashed  = "auth.password.rehashed"
	evTokenRejected     = "auth.token.rejected"
	evUnknownAccount    = "auth.unknown_account"
	evMisconfigured     = "auth.misconfigured"
	evSessionIssueError = "auth.session.issue_fail"
)

// Metrics counts audit events. A nil *Metrics is a no-op.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the auth API collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication audit events.",
		}, []string{"event"}),
	}
}

func (m *Metrics) inc(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

// audit records a security event in the log and the events counter.
func (h *Handler) audit(ctx context.Context, r *http.Request, event string, attrs ...slog.Attr) {
	h.metrics.inc(event)

	base := []slog.Attr{slog.String("event", event)}
	if r != nil {
		if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
			base = append(base, slog.String("ip", ip.String()))
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			base = append(base, slog.String("user_agent", ua))
		}
	}
	h.log.LogAttrs(ctx, slog.LevelInfo, "auth.audit", append(base, attrs...)...)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
