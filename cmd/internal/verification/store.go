package verification

import (
	"context"
	"time"
)

// Record is a stored token digest.
type Record struct {
	UserID    string
	Purpose   Purpose
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence boundary for verification tokens.
type Store interface {
	// Put inserts or replaces the record for (UserID, Purpose).
	// Returns ErrNotFound when the user does not exist.
	Put(ctx context.Context, rec Record) error

	// Take atomically deletes and returns the record matching purpose and tokenHash.
	// Returns ErrNotFound when nothing matches.
	Take(ctx context.Context, purpose Purpose, tokenHash string) (Record, error)

	// Discard deletes the record for (userID, purpose) if any.
	Discard(ctx context.Context, userID string, purpose Purpose) error
}
