// Package sessionstore holds the client's current identity and credentials.
//
// Reads never block. A session-only login lives in process memory; a persistent
// login is also written to a Backend so it survives restarts.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidSession = errors.New("sessionstore: invalid session")
	ErrNoSession      = errors.New("sessionstore: no active session")
	ErrNoBackend      = errors.New("sessionstore: persistent login requires a backend")
)

// Identity is the signed-in user.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
}

// Name is the label shown to the user.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if i.Username != "" {
		return i.Username
	}
	return i.UserID
}

// Session is an identity plus the credential pair issued for it.
type Session struct {
	Identity  Identity
	SessionID string

	AccessToken     string
	AccessExpiresAt time.Time

	RefreshToken     string
	RefreshExpiresAt time.Time
}

func (s Session) validate() error {
	if strings.TrimSpace(s.Identity.UserID) == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidSession)
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return fmt.Errorf("%w: missing access token", ErrInvalidSession)
	}
	return nil
}

// Backend is the long-lived storage location for persistent logins.
type Backend interface {
	// Load returns the stored session; ok is false when nothing is stored.
	Load(ctx context.Context) (s Session, ok bool, err error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

type state struct {
	session    Session
	persistent bool
}

// Store is safe for concurrent use.
type Store struct {
	backend Backend
	now     func() time.Time

	mu  sync.Mutex
	cur atomic.Pointer[state]
}

// New returns an empty Store. backend may be nil, which disables persistent logins.
func New(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// Login replaces the current session. persistent selects whether it is also written to the backend.
func (s *Store) Login(ctx context.Context, sess Session, persistent bool) error {
	if err := sess.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if persistent {
		if s.backend == nil {
			return ErrNoBackend
		}
		if err := s.backend.Save(ctx, sess); err != nil {
			return fmt.Errorf("sessionstore: save: %w", err)
		}
	} else if s.backend != nil {
		// A session-only login must not leave an older persistent record behind.
		if err := s.backend.Clear(ctx); err != nil {
			return fmt.Errorf("sessionstore: clear: %w", err)
		}
	}

	s.cur.Store(&state{session: sess, persistent: persistent})
	return nil
}

// Logout clears the session from memory and every backend. It is idempotent.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.Store(nil)
	if s.backend == nil {
		return nil
	}
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("sessionstore: clear: %w", err)
	}
	return nil
}

// CurrentIdentity returns the signed-in identity, if any.
func (s *Store) CurrentIdentity() (Identity, bool) {
	st := s.cur.Load()
	if st == nil {
		return Identity{}, false
	}
	return st.session.Identity, true
}

// Credential returns the full current session, if any.
func (s *Store) Credential() (Session, bool) {
	st := s.cur.Load()
	if st == nil {
		return Session{}, false
	}
	return st.session, true
}

// Persistent reports whether the current session is backed by long-lived storage.
func (s *Store) Persistent() bool {
	st := s.cur.Load()
	return st != nil && st.persistent
}

// Renew swaps in a rotated credential pair, keeping the persistence mode.
// Identity fields missing from next are carried over. A logout that happened
// first wins: Renew then returns ErrNoSession.
func (s *Store) Renew(ctx context.Context, next Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.cur.Load()
	if st == nil {
		return ErrNoSession
	}

	prev := st.session
	if next.Identity.UserID == "" {
		next.Identity = prev.Identity
	} else if next.Identity.UserID == prev.Identity.UserID {
		if next.Identity.Username == "" {
			next.Identity.Username = prev.Identity.Username
		}
		if next.Identity.DisplayName == "" {
			next.Identity.DisplayName = prev.Identity.DisplayName
		}
	}
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
		next.RefreshExpiresAt = prev.RefreshExpiresAt
	}
	if err := next.validate(); err != nil {
		return err
	}

	if st.persistent {
		if err := s.backend.Save(ctx, next); err != nil {
			return fmt.Errorf("sessionstore: save: %w", err)
		}
	}
	s.cur.Store(&state{session: next, persistent: st.persistent})
	return nil
}

// Restore loads a persistent session from the backend into memory.
// An expired record is cleared and reported as absent.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.backend == nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok, err := s.backend.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("sessionstore: load: %w", err)
	}
	if !ok {
		return false, nil
	}
	if !sess.RefreshExpiresAt.IsZero() && !s.now().Before(sess.RefreshExpiresAt) {
		if err := s.backend.Clear(ctx); err != nil {
			return false, fmt.Errorf("sessionstore: clear: %w", err)
		}
		return false, nil
	}
	if err := sess.validate(); err != nil {
		return false, err
	}

	s.cur.Store(&state{session: sess, persistent: true})
	return true, nil
}
