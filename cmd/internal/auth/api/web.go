package authapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const platformWeb = "web"

func (h *Handler) webTransport(platform string) bool {
	return h.cfg.WebRefreshCookieEnabled && strings.EqualFold(strings.TrimSpace(platform), platformWeb)
}

// setWebSessionCookies sets the HttpOnly refresh cookie and a readable CSRF cookie for the double submit.
func (h *Handler) setWebSessionCookies(w http.ResponseWriter, refreshToken string, refreshExp time.Time) (string, error) {
	csrf, err := newOpaqueWebToken(32)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, h.cookie(h.cfg.RefreshCookieName, refreshToken, refreshExp, true))
	http.SetCookie(w, h.cookie(h.cfg.CSRFCookieName, csrf, refreshExp, false))
	return csrf, nil
}

func (h *Handler) clearWebSessionCookies(w http.ResponseWriter) {
	if !h.cfg.WebRefreshCookieEnabled {
		return
	}
	for _, c := range []*http.Cookie{
		h.cookie(h.cfg.RefreshCookieName, "", time.Unix(0, 0).UTC(), true),
		h.cookie(h.cfg.CSRFCookieName, "", time.Unix(0, 0).UTC(), false),
	} {
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *Handler) cookie(name, value string, exp time.Time, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) (string, bool) {
	if !h.cfg.WebRefreshCookieEnabled {
		return "", false
	}
	c, err := r.Cookie(h.cfg.RefreshCookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	return v, v != ""
}

func (h *Handler) csrfDoubleSubmitValid(r *http.Request) bool {
	c, err := r.Cookie(h.cfg.CSRFCookieName)
	if err != nil {
		return false
	}
	cv := strings.TrimSpace(c.Value)
	hv := strings.TrimSpace(r.Header.Get(h.cfg.CSRFHeaderName))
	if cv == "" || len(cv) != len(hv) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cv), []byte(hv)) == 1
}

func newOpaqueWebToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
