package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// trivial holds passwords rejected outright when RejectVeryWeak is on.
var trivial = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"passw0rd":    {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"11111111":    {},
	"iloveyou":    {},
	"letmein":     {},
	"welcome1":    {},
	"admin123":    {},
}

// Validate checks password policy. Length is counted in runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

// looksVeryWeak is a minimal pattern check, not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := trivial[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	sameRune, digitsOnly := true, true
	for _, r := range s {
		if r != first {
			sameRune = false
		}
		if !unicode.IsDigit(r) {
			digitsOnly = false
		}
	}
	if sameRune {
		return true
	}
	// PIN-like.
	return digitsOnly && utf8.RuneCountInString(s) < 12
}
