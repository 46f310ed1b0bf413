package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL applies to session-only logins; RefreshTTLRemember to persistent ones.
	RefreshTTL         time.Duration
	RefreshTTLRemember time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign PASETO v4.public access tokens.
	PasetoV4SecretKeyHex string
}

// DefaultConfig returns a default configuration suitable for development.
func DefaultConfig() Config {
	return Config{
		Issuer:             "pulse",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTTL:         24 * time.Hour,
		RefreshTTLRemember: 7 * 24 * time.Hour,
		ClockSkew:          30 * time.Second,
		RefreshTokenBytes:  32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - PULSE_PASETO_V4_SECRET_KEY_HEX
//
// Optional (durations must be valid Go duration strings):
//   - PULSE_AUTH_ISSUER
//   - PULSE_AUTH_ACCESS_TTL
//   - PULSE_AUTH_REFRESH_TTL
//   - PULSE_AUTH_REFRESH_TTL_REMEMBER
//   - PULSE_AUTH_CLOCK_SKEW
//   - PULSE_AUTH_REFRESH_TOKEN_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("PULSE_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key       string
		dst       *time.Duration
		allowZero bool
	}{
		{key: "PULSE_AUTH_ACCESS_TTL", dst: &cfg.AccessTokenTTL},
		{key: "PULSE_AUTH_REFRESH_TTL", dst: &cfg.RefreshTTL},
		{key: "PULSE_AUTH_REFRESH_TTL_REMEMBER", dst: &cfg.RefreshTTLRemember},
		{key: "PULSE_AUTH_CLOCK_SKEW", dst: &cfg.ClockSkew, allowZero: true},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowZero) {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("PULSE_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	cfg.PasetoV4SecretKeyHex = os.Getenv("PULSE_PASETO_V4_SECRET_KEY_HEX")
	if cfg.PasetoV4SecretKeyHex == "" {
		return Config{}, ErrConfig
	}

	// A remembered login must never be shorter-lived than a session-only one.
	if cfg.RefreshTTLRemember < cfg.RefreshTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
