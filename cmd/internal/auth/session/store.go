package session

import (
	"context"
	"net"
	"time"
)

// DeviceContext describes the client that owns a session.
type DeviceContext struct {
	// Remember selects the long-lived refresh TTL (persistent client login).
	Remember  bool
	UserAgent string
	IP        net.IP
}

// Row mirrors the pulse.sessions row.
type Row struct {
	ID                  string
	UserID              string
	RefreshTokenHash    string
	Remember            bool
	CreatedAt           time.Time
	LastUsedAt          *time.Time
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	ReplacedBySessionID *string
}

// Active reports whether the row can still authenticate requests at now.
func (r Row) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ReplacedBySessionID == nil && r.ExpiresAt.After(now)
}

// NewSession is the input for creating a session row.
type NewSession struct {
	ID          string
	UserID      string
	Device      DeviceContext
	RefreshHash string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store abstracts persistence for session state.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, in NewSession) error

	// GetByID loads a session row by ID.
	GetByID(ctx context.Context, sessionID string) (Row, error)

	// Rotate atomically swaps the session owning refreshHash for the one returned by next.
	//
	// next is called with the locked old row only when rotation may proceed.
	// Implementations must serialize concurrent rotations of the same token and
	// apply these outcomes:
	//   - unknown hash: ErrSessionNotFound
	//   - expired row: ErrSessionExpired
	//   - row already rotated: revoke every session of the user, ErrRefreshReuseDetected
	//   - row revoked without replacement: ErrSessionRevoked
	Rotate(ctx context.Context, now time.Time, refreshHash string, next func(old Row) (NewSession, error)) (Row, error)

	// Touch updates last_used_at for a session.
	Touch(ctx context.Context, now time.Time, sessionID string) error

	// Revoke revokes a single session (idempotent).
	Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error

	// RevokeAll revokes all sessions for a user (idempotent).
	RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error
}
