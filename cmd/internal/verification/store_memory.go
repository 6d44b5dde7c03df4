package verification

import (
	"context"
	"sync"
)

type key struct {
	userID  string
	purpose Purpose
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	recs   map[key]Record
	byHash map[string]key

	// userExists, when set, enforces the user foreign key.
	userExists func(ctx context.Context, userID string) bool
}

// NewMemoryStore returns an empty store. userExists may be nil.
func NewMemoryStore(userExists func(ctx context.Context, userID string) bool) *MemoryStore {
	return &MemoryStore{
		recs:       make(map[key]Record),
		byHash:     make(map[string]key),
		userExists: userExists,
	}
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.UserID == "" || rec.TokenHash == "" || !rec.Purpose.Valid() {
		return ErrInvalidInput
	}
	if s.userExists != nil && !s.userExists(ctx, rec.UserID) {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{rec.UserID, rec.Purpose}
	if old, ok := s.recs[k]; ok {
		delete(s.byHash, old.TokenHash)
	}
	s.recs[k] = rec
	s.byHash[rec.TokenHash] = k
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, purpose Purpose, tokenHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byHash[tokenHash]
	if !ok || k.purpose != purpose {
		return Record{}, ErrNotFound
	}
	rec := s.recs[k]
	delete(s.recs, k)
	delete(s.byHash, tokenHash)
	return rec, nil
}

func (s *MemoryStore) Discard(ctx context.Context, userID string, purpose Purpose) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{userID, purpose}
	if rec, ok := s.recs[k]; ok {
		delete(s.byHash, rec.TokenHash)
		delete(s.recs, k)
	}
	return nil
}

// Len reports the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}
