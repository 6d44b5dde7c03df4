package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable read by FromEnv.
const EnvPrefix = "GATE_"

// MinPepperBytes is the shortest pepper accepted by CheckPepper.
const MinPepperBytes = 16

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB"`
	Iterations  uint32 `env:"ITERATIONS"`
	Parallelism uint8  `env:"PARALLELISM"`
	SaltLength  uint32 `env:"SALT_LEN"`
	KeyLength   uint32 `env:"KEY_LEN"`
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int `env:"MIN_LEN"`
	MaxLength int `env:"MAX_LEN"`
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool `env:"REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams `envPrefix:"ARGON2_"`
	Policy Policy         `envPrefix:"PASSWORD_"`

	// Pepper is the process-wide secret mixed into every hash.
	// Env: GATE_AUTH_PEPPER
	Pepper string `env:"AUTH_PEPPER"`
}

// DefaultConfig returns a strong baseline for interactive logins.
// The pepper is left empty and must come from configuration.
func DefaultConfig() Config {
	// Clamp to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,              // reasonable default for interactive logins
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
//   - GATE_AUTH_PEPPER
//   - GATE_PASSWORD_MIN_LEN
//   - GATE_PASSWORD_MAX_LEN
//   - GATE_PASSWORD_REJECT_VERY_WEAK (true/false)
//   - GATE_ARGON2_MEMORY_KIB
//   - GATE_ARGON2_ITERATIONS
//   - GATE_ARGON2_PARALLELISM
//   - GATE_ARGON2_SALT_LEN
//   - GATE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CheckPepper reports ErrPepperMissing when the pepper is absent or too short to be a secret.
func (c Config) CheckPepper() error {
	if len(c.Pepper) < MinPepperBytes {
		return ErrPepperMissing
	}
	return nil
}

func (c Config) check() error {
	type bound struct {
		name     string
		val      uint64
		min, max uint64
	}
	bounds := []bound{
		{"GATE_PASSWORD_MIN_LEN", uint64(max(c.Policy.MinLength, 0)), 1, 1024},
		{"GATE_PASSWORD_MAX_LEN", uint64(max(c.Policy.MaxLength, 0)), 1, 4096},
		{"GATE_ARGON2_MEMORY_KIB", uint64(c.Params.MemoryKiB), 8 * 1024, 1024 * 1024}, // 8 MiB .. 1 GiB
		{"GATE_ARGON2_ITERATIONS", uint64(c.Params.Iterations), 1, 20},
		{"GATE_ARGON2_PARALLELISM", uint64(c.Params.Parallelism), 1, 64},
		{"GATE_ARGON2_SALT_LEN", uint64(c.Params.SaltLength), 8, 64},
		{"GATE_ARGON2_KEY_LEN", uint64(c.Params.KeyLength), 16, 64},
	}
	for _, b := range bounds {
		if b.val < b.min || b.val > b.max {
			return fmt.Errorf("%s: out of range [%d..%d]", b.name, b.min, b.max)
		}
	}

	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}
