// Package verification manages single-use, purpose-scoped tokens: email
// verification, password reset and one-time login codes.
//
// At most one live token exists per (user, purpose); issuing a new one replaces
// the old. Only the token digest is stored. Consumption is a single atomic
// find-and-delete, so a token can succeed at most once even under concurrent
// requests, and an expired token found during consumption is deleted before
// being reported invalid.
package verification
