package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Validation outcomes recorded by Metrics.
const (
	outcomeValid     = "valid"
	outcomeRefreshed = "refreshed"
	outcomeMissing   = "missing"
	outcomeExpired   = "expired"
	outcomeRaced     = "raced"
	outcomeMalformed = "malformed"
	outcomeError     = "error"
)

// Metrics counts session lifecycle events. A nil *Metrics is a no-op.
type Metrics struct {
	created     prometheus.Counter
	validations *prometheus.CounterVec
	revoked     *prometheus.CounterVec
}

// NewMetrics registers the session collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		created: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions minted.",
		}),
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "session",
			Name:      "validations_total",
			Help:      "Bearer token validations by outcome.",
		}, []string{"outcome"}),
		revoked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "session",
			Name:      "revoked_total",
			Help:      "Sessions deleted by explicit revocation, by scope.",
		}, []string{"scope"}),
	}
}

func (m *Metrics) incCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) incValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) addRevoked(scope string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(scope).Add(float64(n))
}
