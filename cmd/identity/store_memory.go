package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and database-less dev runs.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	roles   map[RoleName]struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithRoleRows replaces the seeded role rows (all known roles by default).
func WithRoleRows(roles ...RoleName) MemoryOption {
	return func(s *MemoryStore) {
		s.roles = make(map[RoleName]struct{}, len(roles))
		for _, r := range roles {
			s.roles[r] = struct{}{}
		}
	}
}

// NewMemoryStore returns an empty store seeded with every known role.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		roles:   make(map[RoleName]struct{}),
	}
	for _, r := range AllRoles() {
		s.roles[r] = struct{}{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return User{}, invalid(op, "email is required")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[DefaultRole]; !ok {
		return User{}, defaultRoleMissing(op)
	}
	norm := NormalizeEmail(email)
	if _, taken := s.byEmail[norm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := &User{
		ID:           id,
		Email:        email,
		EmailNorm:    norm,
		Name:         NormalizeName(in.Name),
		PasswordHash: in.PasswordHash,
		Roles:        []RoleName{DefaultRole},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[id] = u
	s.byEmail[norm] = id
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) SetPasswordHash(ctx context.Context, userID string, hash string, now time.Time) error {
	const op = "identity.SetPasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}
	return s.mutate(ctx, op, userID, func(u *User) {
		h := hash
		u.PasswordHash = &h
		u.UpdatedAt = now
	})
}

func (s *MemoryStore) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	return s.mutate(ctx, "identity.MarkEmailVerified", userID, func(u *User) {
		if u.EmailVerifiedAt == nil {
			t := now
			u.EmailVerifiedAt = &t
		}
		u.UpdatedAt = now
	})
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (UpdateProfileResult, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return UpdateProfileResult{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[in.UserID]
	if !ok {
		return UpdateProfileResult{}, NotFoundError{Op: op, Resource: "user"}
	}

	changed := false
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email == "" {
			return UpdateProfileResult{}, invalid(op, "email is required")
		}
		norm := NormalizeEmail(email)
		if norm != u.EmailNorm {
			if _, taken := s.byEmail[norm]; taken {
				return UpdateProfileResult{}, ConflictError{Op: op, Field: "email"}
			}
			delete(s.byEmail, u.EmailNorm)
			s.byEmail[norm] = u.ID
			u.EmailNorm = norm
			u.EmailVerifiedAt = nil
			changed = true
		}
		u.Email = email
	}
	if in.Name != nil {
		u.Name = NormalizeName(in.Name)
	}
	u.UpdatedAt = now

	return UpdateProfileResult{User: cloneUser(u), EmailChanged: changed}, nil
}

func (s *MemoryStore) GrantRole(ctx context.Context, userID string, role RoleName) error {
	const op = "identity.GrantRole"
	if !role.Valid() {
		return invalid(op, "unknown role")
	}

	s.mu.RLock()
	_, exists := s.roles[role]
	s.mu.RUnlock()
	if !exists {
		return roleMissing(op, role)
	}

	return s.mutate(ctx, op, userID, func(u *User) {
		for _, r := range u.Roles {
			if r == role {
				return
			}
		}
		u.Roles = append(u.Roles, role)
	})
}

func (s *MemoryStore) mutate(ctx context.Context, op, userID string, fn func(*User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	fn(u)
	return nil
}

func cloneUser(u *User) User {
	out := *u
	if u.Name != nil {
		n := *u.Name
		out.Name = &n
	}
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		out.PasswordHash = &h
	}
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		out.EmailVerifiedAt = &t
	}
	out.Roles = append([]RoleName(nil), u.Roles...)
	return out
}
