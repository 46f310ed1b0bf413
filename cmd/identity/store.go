package identity

import (
	"context"
	"strings"
	"time"
)

// User is Pulse's canonical account.
type User struct {
	ID           string
	Username     *string
	UsernameNorm *string
	Email        *string
	EmailNorm    *string
	DisplayName  *string
	CreatedAt    time.Time
}

// Name returns the label shown to other users: display name, then username, then ID.
func (u User) Name() string {
	if u.DisplayName != nil && strings.TrimSpace(*u.DisplayName) != "" {
		return *u.DisplayName
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return u.ID
}

// CreateUserInput describes a registration. At least one of Username or Email is required.
// PasswordHash is an already-encoded hash; plaintext never reaches the store.
type CreateUserInput struct {
	Username     *string
	Email        *string
	DisplayName  *string
	PasswordHash string
	Now          time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)

	// GetByLogin resolves a username or email to the user and its password hash.
	// Returns ErrNotFound when nothing matches.
	GetByLogin(ctx context.Context, login string) (User, string, error)
}

// prepareCreate validates and normalizes a CreateUserInput shared by all stores.
func prepareCreate(op string, in CreateUserInput) (User, error) {
	username := trimPtr(in.Username)
	email := trimPtr(in.Email)
	display := trimPtr(in.DisplayName)

	if username == nil && email == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username or email is required"}
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	u := User{Username: username, Email: email, DisplayName: display, CreatedAt: in.Now}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	if username != nil {
		n := NormalizeUsername(*username)
		if !ValidUsername(n) {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid username"}
		}
		u.UsernameNorm = &n
	}
	if email != nil {
		n := NormalizeEmail(*email)
		if !ValidEmail(n) {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email"}
		}
		u.EmailNorm = &n
	}
	if display != nil && !ValidDisplayName(*display) {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid display name"}
	}

	return u, nil
}

// trimPtr trims a string pointer, returning nil if the result is empty.
func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
