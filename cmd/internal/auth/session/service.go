package session

import (
	"context"
	"time"

	"pulse/cmd/identity/ids"
)

// Service implements the high-level session operations for Pulse.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	UserID       string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService constructs a Service with the provided configuration, store, and token manager.
func NewService(cfg Config, store Store, tokens AccessTokenManager) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens}
}

func (s *Service) refreshTTL(dev DeviceContext) time.Duration {
	if dev.Remember {
		return s.cfg.RefreshTTLRemember
	}
	return s.cfg.RefreshTTL
}

func (s *Service) newSession(now time.Time, userID string, dev DeviceContext) (NewSession, string, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return NewSession{}, "", err
	}
	refreshPlain, refreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return NewSession{}, "", err
	}
	return NewSession{
		ID:          id,
		UserID:      userID,
		Device:      dev,
		RefreshHash: refreshHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.refreshTTL(dev)),
	}, refreshPlain, nil
}

// IssueSession creates a new session for userID and returns fresh tokens.
// Only the refresh token hash is persisted.
func (s *Service) IssueSession(ctx context.Context, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	in, refreshPlain, err := s.newSession(now, userID, dev)
	if err != nil {
		return Issued{}, err
	}
	if err := s.store.Create(ctx, in); err != nil {
		return Issued{}, err
	}
	return s.issued(in.ID, userID, refreshPlain, in.ExpiresAt, now)
}

func (s *Service) issued(sessionID, userID, refreshPlain string, refreshExp, now time.Time) (Issued, error) {
	accessToken, accessExp, err := s.tokens.Issue(userID, sessionID, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		SessionID:    sessionID,
		UserID:       userID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
	}, nil
}

// ValidateAccessToken verifies an access token and ensures the backing session is active.
func (s *Service) ValidateAccessToken(ctx context.Context, token string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return AccessClaims{}, err
	}

	// Server-authoritative session check to honor revocations.
	row, err := s.store.GetByID(ctx, claims.SessionID)
	if err != nil {
		return AccessClaims{}, err
	}

	if row.UserID != claims.UserID {
		return AccessClaims{}, ErrInvalidToken
	}
	if row.RevokedAt != nil || row.ReplacedBySessionID != nil {
		return AccessClaims{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return AccessClaims{}, ErrSessionExpired
	}

	return claims, nil
}

// Refresh rotates the session owning refreshTokenPlain and returns new tokens.
//
// The replacement keeps the persistence mode of the original session.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshTokenPlain string, dev DeviceContext) (Issued, error) {
	hash, ok := hashPresentedRefreshToken(refreshTokenPlain)
	if !ok {
		return Issued{}, ErrSessionNotFound
	}

	var refreshPlain string
	row, err := s.store.Rotate(ctx, now, hash, func(old Row) (NewSession, error) {
		// The stored row decides persistence; rotation never widens a session-only login.
		dev.Remember = old.Remember
		next, plain, err := s.newSession(now, old.UserID, dev)
		refreshPlain = plain
		return next, err
	})
	if err != nil {
		return Issued{}, err
	}
	return s.issued(row.ID, row.UserID, refreshPlain, row.ExpiresAt, now)
}

// RevokeSession revokes a single session (logout from one client).
func (s *Service) RevokeSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Revoke(ctx, now, sessionID, "logout")
}

// RevokeAll revokes all sessions for a user (logout everywhere).
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string) error {
	return s.store.RevokeAll(ctx, now, userID, "logout_all")
}

// TouchSession updates last_used_at for a session (best-effort).
func (s *Service) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}
