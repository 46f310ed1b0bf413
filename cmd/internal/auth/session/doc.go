// Package session implements Pulse's server-side credential lifecycle.
//
// A login issues a short-lived PASETO v4.public access token and an opaque
// refresh token. Refresh tokens are stored hashed (HMAC-SHA256 when
// PULSE_TOKEN_HMAC_KEY is set) and are rotated on every use: the presented
// token is invalidated and a replacement session is linked to it. Presenting
// an already-rotated token revokes every session of the user.
package session
