package session

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"pulse/cmd/security/token"
)

// maxRefreshTokenLen bounds presented refresh tokens before hashing.
const maxRefreshTokenLen = 4096

func newOpaqueRefreshToken(nBytes int) (plain string, hashHex string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	// URL-safe, no padding.
	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, token.HashRefreshTokenHex(plain), nil
}

// hashPresentedRefreshToken normalizes and hashes a client-supplied refresh token.
func hashPresentedRefreshToken(plain string) (string, bool) {
	plain = strings.TrimSpace(plain)
	if plain == "" || len(plain) > maxRefreshTokenLen {
		return "", false
	}
	return token.HashRefreshTokenHex(plain), true
}
