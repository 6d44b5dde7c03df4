package verification

import "errors"

// Public, stable errors for callers.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConfig       = errors.New("invalid verification config")

	// ErrInvalidToken covers unknown, expired, already-used and wrong-purpose tokens alike.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrNotifyFailed wraps failures of the delivery step after the token was stored.
	ErrNotifyFailed = errors.New("verification notification failed")
)
