// Package token produces and digests the opaque secrets Gate hands to clients.
//
// Session bearer tokens and verification tokens are random byte strings encoded
// as unpadded base64url. Only a 64-char hex digest of a token is ever persisted:
//   - SHA-256(token) by default.
//   - HMAC-SHA256(token, key) when a key is configured (GATE_TOKEN_HMAC_KEY).
//
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
