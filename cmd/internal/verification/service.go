package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gate/cmd/security/token"
)

// Issued is a freshly minted token. Token is plaintext and goes only to the notifier.
type Issued struct {
	UserID    string
	Purpose   Purpose
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Notifier delivers an issued token to its owner.
type Notifier func(ctx context.Context, iss Issued) error

// Service issues and consumes verification tokens.
type Service struct {
	cfg     Config
	store   Store
	hasher  token.Hasher
	metrics *Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, hasher token.Hasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, store: store, hasher: hasher}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Issue stores a new token for (userID, purpose), superseding any previous one.
func (s *Service) Issue(ctx context.Context, now time.Time, userID string, purpose Purpose) (Issued, error) {
	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}
	if strings.TrimSpace(userID) == "" || !purpose.Valid() {
		return Issued{}, ErrInvalidInput
	}
	ttl, err := s.cfg.TTL(purpose)
	if err != nil {
		return Issued{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := token.Random(s.cfg.TokenBytes)
	if err != nil {
		return Issued{}, err
	}

	iss := Issued{UserID: userID, Purpose: purpose, Token: plain, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	err = s.store.Put(ctx, Record{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: s.hasher.Sum(plain),
		CreatedAt: now,
		ExpiresAt: iss.ExpiresAt,
	})
	if err != nil {
		return Issued{}, fmt.Errorf("verification put: %w", err)
	}

	s.metrics.inc("issued", purpose)
	return iss, nil
}

// IssueAndNotify issues a token and then runs notify.
// A delivery failure is returned wrapped in ErrNotifyFailed; the stored token stays live
// and is superseded by the next request.
func (s *Service) IssueAndNotify(ctx context.Context, now time.Time, userID string, purpose Purpose, notify Notifier) (Issued, error) {
	iss, err := s.Issue(ctx, now, userID, purpose)
	if err != nil {
		return Issued{}, err
	}
	if notify == nil {
		return iss, nil
	}
	if err := notify(ctx, iss); err != nil {
		s.metrics.inc("notify_failed", purpose)
		return iss, fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	return iss, nil
}

// Decoy performs the token generation and hashing work of Issue without storing anything.
// Enumeration-sensitive flows call it for unknown accounts.
func (s *Service) Decoy(purpose Purpose) {
	plain, err := token.Random(s.cfg.TokenBytes)
	if err != nil {
		return
	}
	_ = s.hasher.Sum(plain)
	s.metrics.inc("decoy", purpose)
}

// Consume redeems tok for purpose and returns the owning user id.
// Every failure mode collapses to ErrInvalidToken; storage faults are returned as-is.
func (s *Service) Consume(ctx context.Context, now time.Time, purpose Purpose, tok string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > token.MaxEncodedLen || !purpose.Valid() {
		s.metrics.inc("rejected", purpose)
		return "", ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rec, err := s.store.Take(ctx, purpose, s.hasher.Sum(tok))
	if errors.Is(err, ErrNotFound) {
		s.metrics.inc("rejected", purpose)
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("verification take: %w", err)
	}

	// Take already removed the row, so an expired token is purged here too.
	if now.After(rec.ExpiresAt) {
		s.metrics.inc("expired", purpose)
		return "", ErrInvalidToken
	}

	s.metrics.inc("consumed", purpose)
	return rec.UserID, nil
}

// Discard drops any live token for (userID, purpose).
func (s *Service) Discard(ctx context.Context, userID string, purpose Purpose) error {
	if strings.TrimSpace(userID) == "" || !purpose.Valid() {
		return ErrInvalidInput
	}
	return s.store.Discard(ctx, userID, purpose)
}

// Metrics counts token events by purpose. A nil *Metrics is a no-op.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the verification collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "verification",
			Name:      "events_total",
			Help:      "Verification token events by purpose and event.",
		}, []string{"purpose", "event"}),
	}
}

func (m *Metrics) inc(event string, p Purpose) {
	if m == nil {
		return
	}
	if !p.Valid() {
		p = "unknown"
	}
	m.events.WithLabelValues(string(p), event).Inc()
}
