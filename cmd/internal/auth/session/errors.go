package session

import "errors"

var (
	// ErrSessionNotFound is returned by stores when no row matches the session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
