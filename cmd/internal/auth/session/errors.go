package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when a refresh token does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session is expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRefreshReuseDetected is returned when a rotated refresh token is presented again.
	// Every session of the user has been revoked by the time it is returned.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IsCredentialError reports whether err rejects the presented credential itself,
// as opposed to a failure while checking it.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrRefreshReuseDetected)
}
