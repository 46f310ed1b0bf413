package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
	"pulse/cmd/internal/httpx"
	"pulse/cmd/internal/metrics"
	"pulse/cmd/security/password"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/prometheus/client_golang/prometheus"
)

const testPassword = "Very-Strong-Password-1!"

type authFixture struct {
	srv *httptest.Server
	reg *prometheus.Registry
}

func newAuthFixture(t *testing.T, cfg Config) authFixture {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	sessions := session.NewService(sessCfg, session.NewMemoryStore(), tokens)

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1

	reg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(log, cfg, identity.NewMemoryStore(), sessions, pw, metrics.NewCollector(reg))

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return authFixture{srv: srv, reg: reg}
}

func flowConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	return cfg
}

type call struct {
	method, path, bearer string
	body                 any
	header               http.Header
	cookies              []*http.Cookie
}

func (f authFixture) do(t *testing.T, c call) *http.Response {
	t.Helper()
	var rdr io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(c.method, f.srv.URL+c.path, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	if code == "" {
		return
	}
	if got := decodeBody[httpx.ErrorResponse](t, resp).Error.Code; got != code {
		t.Fatalf("error code = %q, want %q", got, code)
	}
}

func (f authFixture) register(t *testing.T, username string) authResponse {
	t.Helper()
	email := username + "@example.com"
	resp := f.do(t, call{method: http.MethodPost, path: "/auth/register", body: registerRequest{
		Username: username,
		Email:    &email,
		Password: testPassword,
	}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	return decodeBody[authResponse](t, resp)
}

func TestRegister(t *testing.T) {
	f := newAuthFixture(t, flowConfig())

	out := f.register(t, "ana")
	if out.User.ID == "" || out.Session.AccessToken == "" || out.Session.RefreshToken == "" {
		t.Fatalf("incomplete register response: %+v", out)
	}
	if out.Session.UserID != out.User.ID {
		t.Fatalf("session user = %q, want %q", out.Session.UserID, out.User.ID)
	}

	dup := f.do(t, call{method: http.MethodPost, path: "/auth/register", body: registerRequest{Username: "ANA", Password: testPassword}})
	expectCode(t, dup, http.StatusConflict, "conflict")

	weak := f.do(t, call{method: http.MethodPost, path: "/auth/register", body: registerRequest{Username: "bo", Password: "password"}})
	expectCode(t, weak, http.StatusBadRequest, "weak_password")

	bad := f.do(t, call{method: http.MethodPost, path: "/auth/register", body: map[string]any{"user": "x"}})
	expectCode(t, bad, http.StatusBadRequest, "invalid_json")
}

func TestLogin_NoEnumeration(t *testing.T) {
	f := newAuthFixture(t, flowConfig())
	f.register(t, "ana")

	unknown := f.do(t, call{method: http.MethodPost, path: "/auth/login", body: loginRequest{Login: "nobody", Password: testPassword}})
	expectCode(t, unknown, http.StatusUnauthorized, "invalid_credentials")

	wrong := f.do(t, call{method: http.MethodPost, path: "/auth/login", body: loginRequest{Login: "ana", Password: "Wrong-Password-1!"}})
	expectCode(t, wrong, http.StatusUnauthorized, "invalid_credentials")

	missing := f.do(t, call{method: http.MethodPost, path: "/auth/login", body: loginRequest{Login: "ana"}})
	expectCode(t, missing, http.StatusBadRequest, "invalid_request")

	ok := f.do(t, call{method: http.MethodPost, path: "/auth/login", body: loginRequest{Login: "ana@example.com", Password: testPassword}})
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("login by email status = %d", ok.StatusCode)
	}

	if got := counterValue(t, f.reg, "pulse_auth_events_total", map[string]string{"event": "login", "result": "ok"}); got != 1 {
		t.Fatalf("login ok counter = %v", got)
	}
}

func TestRefresh_RotatesAndDetectsReuse(t *testing.T) {
	f := newAuthFixture(t, flowConfig())
	first := f.register(t, "ana")

	resp := f.do(t, call{method: http.MethodPost, path: "/auth/refresh", body: refreshRequest{RefreshToken: first.Session.RefreshToken}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	rotated := decodeBody[refreshResponse](t, resp).Session
	if rotated.RefreshToken == "" || rotated.RefreshToken == first.Session.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}
	if rotated.UserID != first.User.ID {
		t.Fatalf("refresh user = %q", rotated.UserID)
	}

	me := f.do(t, call{method: http.MethodGet, path: "/me", bearer: rotated.AccessToken})
	if me.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", me.StatusCode)
	}
	if got := decodeBody[meResponse](t, me).User.ID; got != first.User.ID {
		t.Fatalf("me user = %q", got)
	}

	reuse := f.do(t, call{method: http.MethodPost, path: "/auth/refresh", body: refreshRequest{RefreshToken: first.Session.RefreshToken}})
	expectCode(t, reuse, http.StatusUnauthorized, "refresh_reuse_detected")

	// Reuse revokes every session of the user.
	after := f.do(t, call{method: http.MethodGet, path: "/me", bearer: rotated.AccessToken})
	expectCode(t, after, http.StatusUnauthorized, "unauthorized")

	empty := f.do(t, call{method: http.MethodPost, path: "/auth/refresh"})
	expectCode(t, empty, http.StatusBadRequest, "invalid_request")

	unknown := f.do(t, call{method: http.MethodPost, path: "/auth/refresh", body: refreshRequest{RefreshToken: "nope"}})
	expectCode(t, unknown, http.StatusUnauthorized, "session_not_active")
}

func TestRefresh_WebCookieNeedsCSRF(t *testing.T) {
	cfg := flowConfig()
	f := newAuthFixture(t, cfg)
	email := "web@example.com"

	resp := f.do(t, call{method: http.MethodPost, path: "/auth/register", body: registerRequest{
		Username: "web", Email: &email, Password: testPassword, Platform: "web",
	}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	if body := decodeBody[authResponse](t, resp); body.Session.RefreshToken != "" {
		t.Fatalf("web response leaked the refresh token in the body")
	}

	var refreshCookie, csrfCookie *http.Cookie
	for _, c := range resp.Cookies() {
		switch c.Name {
		case cfg.RefreshCookieName:
			refreshCookie = c
		case cfg.CSRFCookieName:
			csrfCookie = c
		}
	}
	if refreshCookie == nil || csrfCookie == nil {
		t.Fatalf("missing session cookies")
	}

	noCSRF := f.do(t, call{method: http.MethodPost, path: "/auth/refresh", cookies: []*http.Cookie{refreshCookie, csrfCookie}})
	expectCode(t, noCSRF, http.StatusForbidden, "csrf_invalid")

	withCSRF := f.do(t, call{
		method:  http.MethodPost,
		path:    "/auth/refresh",
		cookies: []*http.Cookie{refreshCookie, csrfCookie},
		header:  http.Header{cfg.CSRFHeaderName: []string{csrfCookie.Value}},
	})
	if withCSRF.StatusCode != http.StatusOK {
		t.Fatalf("cookie refresh status = %d", withCSRF.StatusCode)
	}
	if len(withCSRF.Cookies()) != 2 {
		t.Fatalf("rotated cookies not set")
	}
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t, flowConfig())
	a := f.register(t, "ana")
	b := f.do(t, call{method: http.MethodPost, path: "/auth/login", body: loginRequest{Login: "ana", Password: testPassword}})
	second := decodeBody[authResponse](t, b)

	expectCode(t, f.do(t, call{method: http.MethodPost, path: "/auth/logout"}), http.StatusUnauthorized, "unauthorized")

	out := f.do(t, call{method: http.MethodPost, path: "/auth/logout", bearer: a.Session.AccessToken})
	if out.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", out.StatusCode)
	}
	expectCode(t, f.do(t, call{method: http.MethodGet, path: "/me", bearer: a.Session.AccessToken}), http.StatusUnauthorized, "")
	if f.do(t, call{method: http.MethodGet, path: "/me", bearer: second.Session.AccessToken}).StatusCode != http.StatusOK {
		t.Fatalf("single logout revoked the other session")
	}

	all := f.do(t, call{method: http.MethodPost, path: "/auth/logout_all", bearer: second.Session.AccessToken})
	if all.StatusCode != http.StatusNoContent {
		t.Fatalf("logout_all status = %d", all.StatusCode)
	}
	expectCode(t, f.do(t, call{method: http.MethodGet, path: "/me", bearer: second.Session.AccessToken}), http.StatusUnauthorized, "")

	refresh := f.do(t, call{method: http.MethodPost, path: "/auth/refresh", body: refreshRequest{RefreshToken: second.Session.RefreshToken}})
	expectCode(t, refresh, http.StatusUnauthorized, "session_not_active")
}

func TestAuthRoutes_RateLimitedPerIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 3
	cfg.RateWindow = time.Hour
	f := newAuthFixture(t, cfg)

	for i := range 3 {
		resp := f.do(t, call{method: http.MethodPost, path: "/auth/login", body: loginRequest{Login: "x", Password: "y"}})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}
	limited := f.do(t, call{method: http.MethodPost, path: "/auth/refresh", body: refreshRequest{RefreshToken: "t"}})
	if limited.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", limited.StatusCode)
	}
	if limited.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	// /me is not part of the auth budget.
	expectCode(t, f.do(t, call{method: http.MethodGet, path: "/me"}), http.StatusUnauthorized, "unauthorized")

	if got := counterValue(t, f.reg, "pulse_rate_limited_total", map[string]string{"scope": "auth"}); got != 1 {
		t.Fatalf("rate limited counter = %v", got)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
