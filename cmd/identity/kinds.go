package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")

	// ErrMisconfigured marks server-side setup faults (e.g. the default role row is missing).
	// Callers must log it and surface a generic server error.
	ErrMisconfigured = errors.New("misconfigured")
)
