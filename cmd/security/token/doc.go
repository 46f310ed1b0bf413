// Package token hashes opaque refresh tokens for server-side storage.
//
// When PULSE_TOKEN_HMAC_KEY is set, tokens are hashed with HMAC-SHA256 under
// that key; otherwise plain SHA-256 is used (development only). Output is
// always 64 lowercase hex characters.
package token
