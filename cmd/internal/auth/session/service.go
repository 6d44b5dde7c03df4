package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gate/cmd/identity"
	"gate/cmd/security/token"
)

// Service implements the high-level session operations for Gate.
type Service struct {
	cfg     Config
	store   Store
	hasher  token.Hasher
	log     *slog.Logger
	metrics *Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger used for lifecycle events (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs a Service. hasher derives session ids from bearer tokens.
func NewService(cfg Config, store Store, hasher token.Hasher, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfig)
	}
	s := &Service{cfg: cfg, store: store, hasher: hasher, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Issued is the result of CreateSession.
// Token is the plaintext bearer credential and must only ever reach the client.
type Issued struct {
	Token   string
	Session Row
}

// Validation is the result of ValidateToken. The zero value is anonymous.
type Validation struct {
	Session Row
	User    identity.User

	// Refreshed is set when this read extended ExpiresAt.
	Refreshed bool
}

// Valid reports whether the token resolved to a live session.
func (v Validation) Valid() bool { return v.Session.ID != "" }

// Principal projects the owner for downstream authorization.
func (v Validation) Principal() identity.Principal { return identity.Project(v.User) }

// SessionID derives the storage id of a bearer token.
func (s *Service) SessionID(bearer string) string {
	return s.hasher.Sum(bearer)
}

// CreateSession mints a bearer token and persists its digest with expires_at = now + TTL.
func (s *Service) CreateSession(ctx context.Context, now time.Time, userID string) (Issued, error) {
	if strings.TrimSpace(userID) == "" {
		return Issued{}, errors.New("session: missing user id")
	}

	bearer, err := token.Random(s.cfg.TokenBytes)
	if err != nil {
		return Issued{}, err
	}

	row := Row{
		ID:        s.SessionID(bearer),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.Create(ctx, row); err != nil {
		return Issued{}, fmt.Errorf("session create: %w", err)
	}

	s.metrics.incCreated()
	return Issued{Token: bearer, Session: row}, nil
}

// ValidateToken resolves a bearer token to its session and owner.
//
// Anonymous (zero Validation, nil error) when the token is unknown, expired,
// or deleted concurrently while being refreshed. Expired rows are deleted.
// Only storage faults surface as errors.
func (s *Service) ValidateToken(ctx context.Context, now time.Time, bearer string) (Validation, error) {
	if bearer == "" || len(bearer) > token.MaxEncodedLen {
		s.metrics.incValidation(outcomeMalformed)
		return Validation{}, nil
	}

	id := s.SessionID(bearer)

	row, user, err := s.store.GetWithUser(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		s.metrics.incValidation(outcomeMissing)
		return Validation{}, nil
	}
	if err != nil {
		s.metrics.incValidation(outcomeError)
		return Validation{}, fmt.Errorf("session lookup: %w", err)
	}

	if !row.ExpiresAt.After(now) {
		if err := s.store.Delete(ctx, id); err != nil {
			s.log.WarnContext(ctx, "session.expire.delete_fail", "user_id", row.UserID, "err", err)
		}
		s.metrics.incValidation(outcomeExpired)
		return Validation{}, nil
	}

	if !now.Before(row.ExpiresAt.Add(-s.cfg.RefreshThreshold)) {
		next := now.Add(s.cfg.TTL)
		err := s.store.Extend(ctx, id, next)
		if errors.Is(err, ErrSessionNotFound) {
			s.log.DebugContext(ctx, "session.refresh.race", "user_id", row.UserID)
			s.metrics.incValidation(outcomeRaced)
			return Validation{}, nil
		}
		if err != nil {
			s.metrics.incValidation(outcomeError)
			return Validation{}, fmt.Errorf("session refresh: %w", err)
		}
		row.ExpiresAt = next
		s.metrics.incValidation(outcomeRefreshed)
		return Validation{Session: row, User: user, Refreshed: true}, nil
	}

	s.metrics.incValidation(outcomeValid)
	return Validation{Session: row, User: user}, nil
}

// InvalidateSession deletes one session by id. Unknown ids are not an error.
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	s.metrics.addRevoked("single", 1)
	return nil
}

// InvalidateToken deletes the session addressed by a bearer token (logout).
func (s *Service) InvalidateToken(ctx context.Context, bearer string) error {
	if bearer == "" || len(bearer) > token.MaxEncodedLen {
		return nil
	}
	return s.InvalidateSession(ctx, s.SessionID(bearer))
}

// InvalidateAllSessionsForUser deletes every session of userID (e.g. after a password change).
func (s *Service) InvalidateAllSessionsForUser(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil
	}
	n, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("session delete all: %w", err)
	}
	s.metrics.addRevoked("user", n)
	s.log.InfoContext(ctx, "session.revoke_all", "user_id", userID, "count", n)
	return n, nil
}
