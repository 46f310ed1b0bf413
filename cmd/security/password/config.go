package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline cost and policy.
func DefaultConfig() Config {
	// Parallelism follows the host but stays within [1..4] for predictable container usage.
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
//   - PULSE_PASSWORD_MIN_LEN, PULSE_PASSWORD_MAX_LEN
//   - PULSE_PASSWORD_REJECT_VERY_WEAK (true/false)
//   - PULSE_ARGON2_MEMORY_KIB, PULSE_ARGON2_ITERATIONS, PULSE_ARGON2_PARALLELISM
//   - PULSE_ARGON2_SALT_LEN, PULSE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		set      func(int)
	}{
		{"PULSE_PASSWORD_MIN_LEN", 1, 1024, func(n int) { cfg.Policy.MinLength = n }},
		{"PULSE_PASSWORD_MAX_LEN", 1, 4096, func(n int) { cfg.Policy.MaxLength = n }},
		{"PULSE_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(n int) { cfg.Params.MemoryKiB = uint32(n) }},
		{"PULSE_ARGON2_ITERATIONS", 1, 20, func(n int) { cfg.Params.Iterations = uint32(n) }},
		{"PULSE_ARGON2_PARALLELISM", 1, math.MaxUint8, func(n int) { cfg.Params.Parallelism = uint8(n) }},
		{"PULSE_ARGON2_SALT_LEN", 8, 64, func(n int) { cfg.Params.SaltLength = uint32(n) }},
		{"PULSE_ARGON2_KEY_LEN", 16, 64, func(n int) { cfg.Params.KeyLength = uint32(n) }},
	}
	for _, it := range ints {
		v, ok := os.LookupEnv(it.key)
		if !ok {
			continue
		}
		n, err := parseBoundedInt(v, it.min, it.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", it.key, err)
		}
		it.set(n) // #nosec G115 -- bounds checked above.
	}

	if v, ok := os.LookupEnv("PULSE_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("PULSE_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func parseBoundedInt(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}
