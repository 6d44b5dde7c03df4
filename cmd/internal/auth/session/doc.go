// Package session implements Gate's cookie session lifecycle.
//
// A session is addressed by the digest of an opaque bearer token; the plaintext
// token exists only in the client's cookie and in the CreateSession return value.
//
// Lifecycle per session: created -> (refreshed)* -> expired | revoked -> gone.
//   - ValidateToken deletes expired rows it encounters (lazy expiry).
//   - ValidateToken pushes expires_at to now+TTL once the remaining lifetime falls
//     inside RefreshThreshold (sliding expiration), so most reads do not write.
//   - A refresh that loses a race with a concurrent delete yields anonymous, not an error.
//
// There is no in-process cache: every validation round-trips to the Store.
package session
