package app

import (
	"errors"
	"fmt"

	"pulse/cmd/security/token"
)

// ValidateSecurityConfig fails startup when the deployment demands HMAC refresh-token hashing without a usable key.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}
	err := token.CheckHMACKey()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrHMACKeyMissing):
		return fmt.Errorf("security policy: PULSE_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return fmt.Errorf("security policy: %s must be at least %d bytes", token.HMACEnvKey, token.MinHMACKeyBytes)
	default:
		return err
	}
}
