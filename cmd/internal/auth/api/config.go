package authapi

import (
	"net/http"
	"strings"
	"time"

	"pulse/cmd/internal/env"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// RateLimit requests per RateWindow are allowed per client IP across /auth/*.
	RateLimit  int
	RateWindow time.Duration

	// Web clients receive the refresh token as an HttpOnly cookie guarded by a CSRF double submit.
	WebRefreshCookieEnabled bool
	RefreshCookieName       string
	CSRFCookieName          string
	CSRFHeaderName          string
	CookiePath              string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:            1 << 20,
		RateLimit:               10,
		RateWindow:              time.Minute,
		WebRefreshCookieEnabled: true,
		RefreshCookieName:       "pulse_refresh",
		CSRFCookieName:          "pulse_csrf",
		CSRFHeaderName:          "X-CSRF-Token",
		CookiePath:              "/auth",
		CookieSecure:            true,
		CookieSameSite:          http.SameSiteLaxMode,
	}
}

// LoadConfigFromEnv loads auth config from PULSE_AUTH_* variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		TrustProxy:              env.Bool("PULSE_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:            env.Int64("PULSE_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		RateLimit:               env.Int("PULSE_AUTH_RATE_LIMIT", def.RateLimit),
		RateWindow:              env.Duration("PULSE_AUTH_RATE_WINDOW", def.RateWindow),
		WebRefreshCookieEnabled: env.Bool("PULSE_AUTH_WEB_COOKIE", def.WebRefreshCookieEnabled),
		RefreshCookieName:       env.String("PULSE_AUTH_REFRESH_COOKIE_NAME", def.RefreshCookieName),
		CSRFCookieName:          env.String("PULSE_AUTH_CSRF_COOKIE_NAME", def.CSRFCookieName),
		CSRFHeaderName:          env.String("PULSE_AUTH_CSRF_HEADER", def.CSRFHeaderName),
		CookiePath:              env.String("PULSE_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:            env.String("PULSE_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:            env.Bool("PULSE_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:          parseSameSite(env.String("PULSE_AUTH_COOKIE_SAMESITE", "lax")),
	}

	if cfg.CSRFCookieName == cfg.RefreshCookieName {
		cfg.CSRFCookieName = cfg.RefreshCookieName + "_csrf"
	}
	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
