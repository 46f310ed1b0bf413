package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse/cmd/internal/auth/session"
)

type authFunc func(token string) (session.AccessClaims, error)

func (f authFunc) ValidateAccessToken(_ context.Context, token string, _ time.Time) (session.AccessClaims, error) {
	return f(token)
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		status int
		code   string
	}{
		{name: "ok", header: "Bearer good", status: http.StatusOK},
		{name: "missing", status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "invalid", header: "Bearer bad", err: session.ErrInvalidToken, status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "revoked", header: "Bearer bad", err: session.ErrSessionRevoked, status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "unknown session", header: "Bearer bad", err: fmt.Errorf("get: %w", session.ErrSessionNotFound), status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "store down", header: "Bearer good", err: errors.New("connection refused"), status: http.StatusServiceUnavailable, code: "auth_unavailable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auth := authFunc(func(string) (session.AccessClaims, error) {
				if tc.err != nil {
					return session.AccessClaims{}, tc.err
				}
				return session.AccessClaims{UserID: "u1"}, nil
			})
			req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			claims, ok := RequireAuth(rec, req, auth)
			if tc.status == http.StatusOK {
				if !ok || claims.UserID != "u1" {
					t.Fatalf("ok=%v claims=%+v", ok, claims)
				}
				return
			}
			if ok {
				t.Fatalf("expected rejection")
			}
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tc.code {
				t.Fatalf("code = %q, want %q", body.Error.Code, tc.code)
			}
		})
	}
}
