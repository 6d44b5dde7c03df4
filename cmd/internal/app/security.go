package app

import (
	"errors"

	"gate/cmd/security/token"
)

// MinTokenHMACKeyBytes is the shortest accepted GATE_TOKEN_HMAC_KEY.
const MinTokenHMACKeyBytes = 32

// TokenHasher enforces the token digest policy and returns the hasher shared
// by sessions and verification tokens.
//
// Without a key the digest falls back to SHA-256, which is refused when
// RequireTokenHMAC is set. A key that is present but short is always refused.
func TokenHasher(cfg Config) (token.Hasher, error) {
	key, err := token.ParseHMACKey(cfg.TokenHMACKey, MinTokenHMACKeyBytes)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrHMACKeyMissing):
		if cfg.RequireTokenHMAC {
			return token.Hasher{}, errors.New("security policy: GATE_REQUIRE_TOKEN_HMAC=true but GATE_TOKEN_HMAC_KEY is missing")
		}
		return token.NewHasher(nil), nil
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, errors.New("security policy: GATE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	default:
		return token.Hasher{}, err
	}

	h := token.NewHasher(key)
	if cfg.RequireTokenHMAC && !h.Keyed() {
		return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	return h, nil
}
