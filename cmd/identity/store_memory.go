package identity

import (
	"context"
	"sync"

	"pulse/cmd/identity/ids"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]User
	hashes     map[string]string
	byUsername map[string]string
	byEmail    map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]User),
		hashes:     make(map[string]string),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	u, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.NewULID(u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	u.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.UsernameNorm != nil {
		if _, taken := s.byUsername[*u.UsernameNorm]; taken {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
	}
	if u.EmailNorm != nil {
		if _, taken := s.byEmail[*u.EmailNorm]; taken {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
	}

	s.users[id] = u
	s.hashes[id] = in.PasswordHash
	if u.UsernameNorm != nil {
		s.byUsername[*u.UsernameNorm] = id
	}
	if u.EmailNorm != nil {
		s.byEmail[*u.EmailNorm] = id
	}
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUser", Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) GetByLogin(_ context.Context, login string) (User, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[NormalizeUsername(login)]
	if !ok {
		id, ok = s.byEmail[NormalizeEmail(login)]
	}
	if !ok {
		return User{}, "", NotFoundError{Op: "identity.GetByLogin", Resource: "user"}
	}
	return s.users[id], s.hashes[id], nil
}

var _ Store = (*MemoryStore)(nil)
