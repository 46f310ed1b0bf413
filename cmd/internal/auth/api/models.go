package authapi

import (
	"time"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
)

type registerRequest struct {
	Username    string  `json:"username"`
	Email       *string `json:"email"`
	DisplayName *string `json:"display_name"`
	Password    string  `json:"password"`
	RememberMe  bool    `json:"remember_me"`
	Platform    string  `json:"platform"`
}

type loginRequest struct {
	// Login is a username or an email address.
	Login      string `json:"login"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	Platform   string `json:"platform"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Platform     string `json:"platform"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Username    *string   `json:"username"`
	Email       *string   `json:"email"`
	DisplayName *string   `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type authResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		UserID:           issued.UserID,
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
	}
}
