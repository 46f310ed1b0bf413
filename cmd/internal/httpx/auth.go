package httpx

import (
	"context"
	"net/http"
	"time"

	"pulse/cmd/internal/auth/session"
)

// Authenticator validates bearer access tokens.
type Authenticator interface {
	ValidateAccessToken(ctx context.Context, token string, now time.Time) (session.AccessClaims, error)
}

// RequireAuth validates the request's bearer token. It writes a 401 only when the token is
// missing or rejected; a failure to check it is a 503 so clients do not treat it as expiry.
func RequireAuth(w http.ResponseWriter, r *http.Request, auth Authenticator) (session.AccessClaims, bool) {
	token := BearerToken(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := auth.ValidateAccessToken(r.Context(), token, time.Now().UTC())
	switch {
	case err == nil:
		return claims, true
	case session.IsCredentialError(err):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
	default:
		WriteError(w, http.StatusServiceUnavailable, "auth_unavailable", "could not verify token")
	}
	return session.AccessClaims{}, false
}
