package identity

import (
	"context"
	"time"
)

// User is Gate's canonical account record.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	Name      *string

	// PasswordHash is the encoded Argon2id hash; nil disables password login.
	PasswordHash *string

	EmailVerifiedAt *time.Time
	Roles           []RoleName

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether password login is enabled for u.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// CreateUserInput describes a registration.
// PasswordHash must already be an encoded hash; nil creates a passwordless account.
type CreateUserInput struct {
	Email        string
	Name         *string
	PasswordHash *string
	Now          time.Time
}

// UpdateProfileInput changes the mutable profile fields.
// A nil field is left untouched. Changing the email clears EmailVerifiedAt.
type UpdateProfileInput struct {
	UserID string
	Name   *string
	Email  *string
	Now    time.Time
}

// UpdateProfileResult reports the stored user and whether the email changed.
type UpdateProfileResult struct {
	User         User
	EmailChanged bool
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser inserts a user holding DefaultRole.
	// Duplicate emails yield ConflictError{Field: "email"}; a missing default role yields ErrMisconfigured.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	SetPasswordHash(ctx context.Context, userID string, hash string, now time.Time) error
	MarkEmailVerified(ctx context.Context, userID string, now time.Time) error
	UpdateProfile(ctx context.Context, in UpdateProfileInput) (UpdateProfileResult, error)

	// GrantRole is idempotent.
	GrantRole(ctx context.Context, userID string, role RoleName) error
}
