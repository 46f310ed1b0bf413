package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// HMACEnvKey is the env var name for the token HMAC secret.
// #nosec G101 -- not a credential; it's an environment variable name.
const HMACEnvKey = "PULSE_TOKEN_HMAC_KEY"

// MinHMACKeyBytes is the smallest key accepted when HMAC is required.
const MinHMACKeyBytes = 32

// HashRefreshTokenHex hashes a refresh token with the key from the environment, if any.
func HashRefreshTokenHex(token string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		sum := sha256.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, []byte(key))
	_, _ = m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}

// CheckHMACKey validates the configured key for deployments that require HMAC hashing.
func CheckHMACKey() error {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return ErrHMACKeyMissing
	}
	if len(raw) < MinHMACKeyBytes {
		return ErrHMACKeyTooShort
	}
	return nil
}
