package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// MinBytes and MaxBytes bound the entropy accepted by Random.
	MinBytes = 16
	MaxBytes = 128

	// MaxEncodedLen bounds presented tokens before any hashing work is done.
	MaxEncodedLen = 512
)

// Random returns nBytes of crypto/rand output encoded as unpadded base64url.
func Random(nBytes int) (string, error) {
	if nBytes < MinBytes || nBytes > MaxBytes {
		return "", fmt.Errorf("%w: %d not in [%d..%d]", ErrInvalidLength, nBytes, MinBytes, MaxBytes)
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// ParseHMACKey trims raw and enforces a minimum byte length.
// Blank input -> ErrHMACKeyMissing, short input -> ErrHMACKeyTooShort.
func ParseHMACKey(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Hasher derives the storage digest of a token.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key; a nil or empty key selects SHA-256.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	return Hasher{key: append([]byte(nil), key...)}
}

// Keyed reports whether the Hasher uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Sum returns the 64-char hex digest of tok.
func (h Hasher) Sum(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}
