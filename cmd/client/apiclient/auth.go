package apiclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pulse/cmd/client/refresh"
	"pulse/cmd/client/sessionstore"
)

// User is the account returned by the auth endpoints.
type User struct {
	ID          string    `json:"id"`
	Username    *string   `json:"username"`
	Email       *string   `json:"email"`
	DisplayName *string   `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u User) identity() sessionstore.Identity {
	id := sessionstore.Identity{UserID: u.ID}
	if u.Username != nil {
		id.Username = *u.Username
	}
	if u.DisplayName != nil {
		id.DisplayName = *u.DisplayName
	}
	return id
}

type sessionWire struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (s sessionWire) session(id sessionstore.Identity) sessionstore.Session {
	if id.UserID == "" {
		id.UserID = s.UserID
	}
	return sessionstore.Session{
		Identity:         id,
		SessionID:        s.SessionID,
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}

type authWire struct {
	User    User        `json:"user"`
	Session sessionWire `json:"session"`
}

// RegisterInput describes a new account. Email and DisplayName are optional.
type RegisterInput struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
}

// Register creates an account and signs in. remember keeps the session across restarts.
func (c *Client) Register(ctx context.Context, in RegisterInput, remember bool) (sessionstore.Identity, error) {
	body := map[string]any{
		"username":    in.Username,
		"password":    in.Password,
		"remember_me": remember,
	}
	if in.Email != "" {
		body["email"] = in.Email
	}
	if in.DisplayName != "" {
		body["display_name"] = in.DisplayName
	}

	var out authWire
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/register", in: body, out: &out, want: http.StatusCreated}); err != nil {
		return sessionstore.Identity{}, err
	}
	return c.signIn(ctx, out, remember)
}

// Login signs in by username or email. remember keeps the session across restarts.
func (c *Client) Login(ctx context.Context, login, password string, remember bool) (sessionstore.Identity, error) {
	var out authWire
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/login",
		in:     map[string]any{"login": login, "password": password, "remember_me": remember},
		out:    &out,
	})
	if err != nil {
		return sessionstore.Identity{}, err
	}
	return c.signIn(ctx, out, remember)
}

func (c *Client) signIn(ctx context.Context, out authWire, remember bool) (sessionstore.Identity, error) {
	id := out.User.identity()
	if err := c.sessions.Login(ctx, out.Session.session(id), remember); err != nil {
		return sessionstore.Identity{}, err
	}
	c.log.Info("auth.login", "user_id", id.UserID, "persistent", remember)
	return id, nil
}

// Refresh exchanges a refresh token for a rotated session. It bypasses the coordinator.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (sessionstore.Session, error) {
	var out struct {
		Session sessionWire `json:"session"`
	}
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/refresh",
		in:     map[string]string{"refresh_token": refreshToken},
		out:    &out,
		plain:  true,
	})
	if err != nil {
		return sessionstore.Session{}, err
	}
	return out.Session.session(sessionstore.Identity{}), nil
}

// Logout revokes the server session and always clears the local one.
func (c *Client) Logout(ctx context.Context) error {
	return c.logout(ctx, "/auth/logout")
}

// LogoutAll revokes every session of the signed-in user.
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.logout(ctx, "/auth/logout_all")
}

func (c *Client) logout(ctx context.Context, path string) error {
	var remote error
	if _, ok := c.sessions.Credential(); ok {
		remote = c.do(ctx, call{method: http.MethodPost, path: path, want: http.StatusNoContent})
		if errors.Is(remote, refresh.ErrSessionExpired) || IsStatus(remote, http.StatusUnauthorized) {
			remote = nil
		}
		if remote != nil {
			c.log.Warn("auth.logout.remote_fail", "err", remote)
		}
	}
	return errors.Join(remote, c.sessions.Logout(ctx))
}

// Me returns the signed-in account as the server sees it.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, call{method: http.MethodGet, path: "/me", out: &out}); err != nil {
		return User{}, err
	}
	return out.User, nil
}
