package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]Row
	byHash map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]Row),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, in NewSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createLocked(in)
	return nil
}

func (s *MemoryStore) createLocked(in NewSession) {
	created := in.CreatedAt
	s.rows[in.ID] = Row{
		ID:               in.ID,
		UserID:           in.UserID,
		RefreshTokenHash: in.RefreshHash,
		Remember:         in.Device.Remember,
		CreatedAt:        in.CreatedAt,
		LastUsedAt:       &created,
		ExpiresAt:        in.ExpiresAt,
	}
	s.byHash[in.RefreshHash] = in.ID
}

func (s *MemoryStore) GetByID(_ context.Context, sessionID string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return row, nil
}

func (s *MemoryStore) Rotate(_ context.Context, now time.Time, refreshHash string, next func(old Row) (NewSession, error)) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[refreshHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	old := s.rows[id]

	if !old.ExpiresAt.After(now) {
		return Row{}, ErrSessionExpired
	}
	if old.ReplacedBySessionID != nil {
		s.revokeAllLocked(now, old.UserID)
		return Row{}, ErrRefreshReuseDetected
	}
	if old.RevokedAt != nil {
		return Row{}, ErrSessionRevoked
	}

	in, err := next(old)
	if err != nil {
		return Row{}, err
	}
	s.createLocked(in)

	replacedBy := in.ID
	old.RevokedAt = &now
	old.LastUsedAt = &now
	old.ReplacedBySessionID = &replacedBy
	s.rows[old.ID] = old

	return s.rows[in.ID], nil
}

func (s *MemoryStore) Touch(_ context.Context, now time.Time, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok {
		return nil
	}
	row.LastUsedAt = &now
	s.rows[sessionID] = row
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, now time.Time, sessionID string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok || row.RevokedAt != nil {
		return nil
	}
	row.RevokedAt = &now
	s.rows[sessionID] = row
	return nil
}

func (s *MemoryStore) RevokeAll(_ context.Context, now time.Time, userID string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllLocked(now, userID)
	return nil
}

func (s *MemoryStore) revokeAllLocked(now time.Time, userID string) {
	for id, row := range s.rows {
		if row.UserID != userID || row.RevokedAt != nil {
			continue
		}
		row.RevokedAt = &now
		s.rows[id] = row
	}
}

var _ Store = (*MemoryStore)(nil)
