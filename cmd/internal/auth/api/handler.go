// Package authapi serves registration, login and session endpoints.
package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
	"pulse/cmd/internal/httpx"
	"pulse/cmd/internal/metrics"
	"pulse/cmd/security/password"
)

// Handler wires HTTP auth endpoints to identity/session services.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	metrics metrics.Recorder

	users     identity.Store
	sessions  *session.Service
	passwords password.Config
	limiter   *IPLimiter
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Service, passwords password.Config, m metrics.Recorder) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return &Handler{
		log:       log,
		cfg:       cfg,
		metrics:   metrics.OrNop(m),
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		limiter:   NewIPLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

// Limiter exposes the per-IP limiter so the caller can run its janitor.
func (h *Handler) Limiter() *IPLimiter { return h.limiter }

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /auth/register", h.limited(h.handleRegister))
	mux.Handle("POST /auth/login", h.limited(h.handleLogin))
	mux.Handle("POST /auth/refresh", h.limited(h.handleRefresh))
	mux.Handle("POST /auth/logout", h.limited(h.handleLogout))
	mux.Handle("POST /auth/logout_all", h.limited(h.handleLogoutAll))
	mux.HandleFunc("GET /me", h.handleMe)
}

func (h *Handler) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "unknown"
		if ip := httpx.ClientIP(r, h.cfg.TrustProxy); ip != nil {
			key = ip.String()
		}
		if ok, retry := h.limiter.Allow(key, time.Now()); !ok {
			h.metrics.RateLimited("auth")
			h.log.Warn("auth.rate_limited", "ip", key, "path", r.URL.Path, "retry_after", retry)
			writeRateLimited(w, retry)
			return
		}
		next(w, r)
	})
}

func (h *Handler) device(r *http.Request, remember bool) session.DeviceContext {
	return session.DeviceContext{
		Remember:  remember,
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        httpx.ClientIP(r, h.cfg.TrustProxy),
	}
}

// writeSession sends the issued session, moving the refresh token into cookies for web clients.
func (h *Handler) writeSession(w http.ResponseWriter, status int, webCookie bool, issued session.Issued, build func(sessionResponse) any) {
	resp := toSessionResponse(issued)
	if webCookie {
		if _, err := h.setWebSessionCookies(w, issued.RefreshToken, issued.RefreshExp); err != nil {
			h.log.Error("auth.web_cookie.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		resp.RefreshToken = ""
	}
	httpx.WriteJSON(w, status, build(resp))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		if password.IsPolicyViolation(err) {
			httpx.WriteError(w, http.StatusBadRequest, "weak_password", err.Error())
			return
		}
		h.log.Error("auth.register.hash.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	username := req.Username
	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     &username,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.metrics.AuthEvent("register", "conflict")
			httpx.WriteError(w, http.StatusConflict, "conflict", "username or email already exists")
		case identity.IsInvalidInput(err):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			h.log.Error("auth.register.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	issued, err := h.sessions.IssueSession(ctx, now, u.ID, h.device(r, req.RememberMe))
	if err != nil {
		h.log.Error("auth.register.issue_session.fail", "err", err, "user_id", u.ID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.AuthEvent("register", "ok")
	h.log.Info("auth.register", "user_id", u.ID, "session_id", issued.SessionID)
	h.writeSession(w, http.StatusCreated, h.webTransport(req.Platform), issued, func(s sessionResponse) any {
		return authResponse{User: toUserResponse(u), Session: s}
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "login and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	u, hash, err := h.users.GetByLogin(ctx, login)
	switch {
	case identity.IsNotFound(err):
		// Same work as a real check so timing does not reveal unknown accounts.
		h.passwords.VerifyDummy(req.Password)
		h.loginFailed(w, "not_found")
		return
	case err != nil:
		h.log.Error("auth.login.lookup.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if ok, err := h.passwords.Verify(hash, req.Password); err != nil || !ok {
		h.loginFailed(w, "bad_password")
		return
	}

	issued, err := h.sessions.IssueSession(ctx, now, u.ID, h.device(r, req.RememberMe))
	if err != nil {
		h.log.Error("auth.login.issue_session.fail", "err", err, "user_id", u.ID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.AuthEvent("login", "ok")
	h.log.Info("auth.login", "user_id", u.ID, "session_id", issued.SessionID)
	h.writeSession(w, http.StatusOK, h.webTransport(req.Platform), issued, func(s sessionResponse) any {
		return authResponse{User: toUserResponse(u), Session: s}
	})
}

func (h *Handler) loginFailed(w http.ResponseWriter, reason string) {
	h.metrics.AuthEvent("login", reason)
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	token := strings.TrimSpace(req.RefreshToken)
	fromCookie := false
	if token == "" {
		token, fromCookie = h.refreshTokenFromCookie(r)
	}
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		httpx.WriteError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	issued, err := h.sessions.Refresh(r.Context(), time.Now().UTC(), token, h.device(r, false))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReuseDetected):
			h.metrics.AuthEvent("refresh", "reuse")
			h.log.Warn("auth.refresh.reuse", "ip", httpx.ClientIP(r, h.cfg.TrustProxy))
			httpx.WriteError(w, http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected")
		case errors.Is(err, session.ErrSessionExpired), errors.Is(err, session.ErrSessionRevoked), errors.Is(err, session.ErrSessionNotFound):
			h.metrics.AuthEvent("refresh", "inactive")
			httpx.WriteError(w, http.StatusUnauthorized, "session_not_active", "session not active")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.AuthEvent("refresh", "ok")
	h.writeSession(w, http.StatusOK, fromCookie || h.webTransport(req.Platform), issued, func(s sessionResponse) any {
		return refreshResponse{Session: s}
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.RequireAuth(w, r, h.sessions)
	if !ok {
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), time.Now().UTC(), claims.SessionID); err != nil {
		h.log.Error("auth.logout.fail", "err", err, "session_id", claims.SessionID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.AuthEvent("logout", "ok")
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.RequireAuth(w, r, h.sessions)
	if !ok {
		return
	}
	if err := h.sessions.RevokeAll(r.Context(), time.Now().UTC(), claims.UserID); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err, "user_id", claims.UserID)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.metrics.AuthEvent("logout_all", "ok")
	h.clearWebSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.RequireAuth(w, r, h.sessions)
	if !ok {
		return
	}

	u, err := h.users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			httpx.WriteError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}
