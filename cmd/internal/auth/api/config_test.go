package authapi

import (
	"net/http"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	if cfg.RateLimit != 10 || cfg.RateWindow != time.Minute {
		t.Fatalf("rate limit = %d/%v, want 10/1m", cfg.RateLimit, cfg.RateWindow)
	}
	if !cfg.WebRefreshCookieEnabled || cfg.RefreshCookieName == "" {
		t.Fatalf("web refresh cookie should be on by default: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_CookieGuardrails(t *testing.T) {
	t.Setenv("PULSE_AUTH_REFRESH_COOKIE_NAME", "pulse_token")
	t.Setenv("PULSE_AUTH_CSRF_COOKIE_NAME", "pulse_token")
	t.Setenv("PULSE_AUTH_COOKIE_SAMESITE", "none")
	t.Setenv("PULSE_AUTH_COOKIE_SECURE", "false")

	cfg := LoadConfigFromEnv()

	if cfg.CSRFCookieName == cfg.RefreshCookieName {
		t.Fatalf("csrf cookie name must differ from refresh cookie name")
	}
	if cfg.CookieSameSite != http.SameSiteNoneMode {
		t.Fatalf("expected SameSite=None, got %v", cfg.CookieSameSite)
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "Lax", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		if got := parseSameSite(tc.in); got != tc.want {
			t.Fatalf("parseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
