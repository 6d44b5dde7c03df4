// Package identity holds Gate's user model and its authorization projection.
//
// It owns users, their closed set of role names, and the persistence boundary
// for both (Postgres and in-memory). Password hashing and token handling live in
// cmd/security; callers hash before they reach a Store.
//
// Principal is what downstream route logic sees: an id, an email, a display name
// and a role set, never a password hash.
package identity
