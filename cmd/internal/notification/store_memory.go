package notification

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps events per recipient in creation order.
type MemoryStore struct {
	mu          sync.RWMutex
	byRecipient map[string][]Event
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRecipient: make(map[string][]Event)}
}

func (s *MemoryStore) Create(ctx context.Context, e Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if e.ID == "" {
		return Event{}, ErrInvalidInput
	}
	s.mu.Lock()
	s.byRecipient[e.RecipientID] = append(s.byRecipient[e.RecipientID], e)
	s.mu.Unlock()
	return e, nil
}

func (s *MemoryStore) List(ctx context.Context, recipientID string, opts ListOptions) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	all := s.byRecipient[recipientID]
	out := make([]Event, 0, min(len(all), opts.limit()))
	for i := range all {
		e := all[i]
		if opts.Order == NewestFirst {
			e = all[len(all)-1-i]
		}
		if opts.UnreadOnly && e.Read {
			continue
		}
		out = append(out, e)
		if len(out) == opts.limit() {
			break
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.byRecipient[recipientID] {
		if !e.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, recipientID, id string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.byRecipient[recipientID]
	i := slices.IndexFunc(events, func(e Event) bool { return e.ID == id })
	if i < 0 {
		return Event{}, ErrNotFound
	}
	events[i].Read = true
	return events[i], nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	events := s.byRecipient[recipientID]
	for i := range events {
		if !events[i].Read {
			events[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Delete(_ context.Context, recipientID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.byRecipient[recipientID]
	i := slices.IndexFunc(events, func(e Event) bool { return e.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	s.byRecipient[recipientID] = slices.Delete(events, i, i+1)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.byRecipient[recipientID])
	delete(s.byRecipient, recipientID)
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
