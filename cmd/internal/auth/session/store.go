package session

import (
	"context"
	"time"

	"gate/cmd/identity"
)

// Row mirrors the sessions table.
type Row struct {
	// ID is the digest of the bearer token.
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store abstracts persistence for session state.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, row Row) error

	// GetWithUser loads a session joined with its owner and the owner's roles.
	// Returns ErrSessionNotFound when no row matches.
	GetWithUser(ctx context.Context, sessionID string) (Row, identity.User, error)

	// Extend sets a new expiry. Returns ErrSessionNotFound if the row is gone.
	Extend(ctx context.Context, sessionID string, expiresAt time.Time) error

	// Delete removes one session. A missing row is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteAllForUser removes every session owned by userID and reports how many went.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}
