package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")

	// ErrPepperMissing is a configuration fault: no hash may be produced or checked without it.
	ErrPepperMissing = errors.New("password pepper not configured")
)
