// Package password provides password hashing and verification for Gate.
//
// It implements Argon2id hashing using a PHC-like encoded string format and includes:
//   - Configurable Argon2id parameters (via environment variables)
//   - A server-side pepper mixed into every hash and never written into the encoded string
//   - Password policy validation
//   - Strict hash decoding and verification with anti-DoS bounds
//
// Security notes:
//   - Hash strings are treated as untrusted input during Verify and are validated accordingly.
//   - Rotating or losing the pepper invalidates every stored hash.
package password
