package social

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	posts map[string]Post
	likes map[string]map[string]time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[string]Post),
		likes: make(map[string]map[string]time.Time),
	}
}

func (s *MemoryStore) CreatePost(_ context.Context, p Post) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetPost(_ context.Context, id string) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return Post{}, ErrPostNotFound
	}
	p.Likes = len(s.likes[id])
	return p, nil
}

func (s *MemoryStore) ToggleLike(_ context.Context, postID, userID string, now time.Time) (LikeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return LikeResult{}, ErrPostNotFound
	}

	likers := s.likes[postID]
	if likers == nil {
		likers = make(map[string]time.Time)
		s.likes[postID] = likers
	}
	_, had := likers[userID]
	if had {
		delete(likers, userID)
	} else {
		likers[userID] = now
	}
	return LikeResult{PostID: postID, AuthorID: p.AuthorID, Liked: !had, Likes: len(likers)}, nil
}

var _ Store = (*MemoryStore)(nil)
