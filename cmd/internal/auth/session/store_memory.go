package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"gate/cmd/identity"
)

// UserLookup resolves session owners for MemoryStore.
// *identity.MemoryStore satisfies it.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (identity.User, error)
}

// MemoryStore is an in-process Store for tests and database-less dev runs.
type MemoryStore struct {
	users UserLookup

	mu   sync.Mutex
	rows map[string]Row
}

// NewMemoryStore returns an empty store resolving owners through users.
func NewMemoryStore(users UserLookup) *MemoryStore {
	return &MemoryStore{users: users, rows: make(map[string]Row)}
}

func (s *MemoryStore) Create(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.rows[row.ID]; dup {
		return errors.New("session: duplicate id")
	}
	s.rows[row.ID] = row
	return nil
}

func (s *MemoryStore) GetWithUser(ctx context.Context, sessionID string) (Row, identity.User, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, identity.User{}, err
	}
	s.mu.Lock()
	row, ok := s.rows[sessionID]
	s.mu.Unlock()
	if !ok {
		return Row{}, identity.User{}, ErrSessionNotFound
	}

	u, err := s.users.GetUserByID(ctx, row.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			// Owner deleted; the FK cascade would have removed the session.
			_ = s.Delete(ctx, sessionID)
			return Row{}, identity.User{}, ErrSessionNotFound
		}
		return Row{}, identity.User{}, err
	}
	return row, u, nil
}

func (s *MemoryStore) Extend(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	row.ExpiresAt = expiresAt
	s.rows[sessionID] = row
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, sessionID)
	return nil
}

func (s *MemoryStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, row := range s.rows {
		if row.UserID == userID {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Get returns the raw row, for tests and diagnostics.
func (s *MemoryStore) Get(sessionID string) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[sessionID]
	return row, ok
}
