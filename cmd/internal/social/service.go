package social

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"pulse/cmd/identity"
	"pulse/cmd/identity/ids"
	"pulse/cmd/internal/notification"
)

// Notifier is the notification entry point used after a state change commits.
type Notifier interface {
	Dispatch(ctx context.Context, in notification.Input) (notification.Event, error)
}

// Service implements post and like operations.
type Service struct {
	log      *slog.Logger
	store    Store
	users    identity.Store
	notifier Notifier
}

// NewService constructs a Service.
func NewService(log *slog.Logger, store Store, users identity.Store, notifier Notifier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log, store: store, users: users, notifier: notifier}
}

// CreatePost stores a new post by authorID.
func (s *Service) CreatePost(ctx context.Context, now time.Time, authorID, body string) (Post, error) {
	body = strings.TrimSpace(body)
	if body == "" || utf8.RuneCountInString(body) > maxBodyChars {
		return Post{}, fmt.Errorf("%w: body must be 1..%d characters", ErrInvalidInput, maxBodyChars)
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Post{}, err
	}
	return s.store.CreatePost(ctx, Post{ID: id, AuthorID: authorID, Body: body, CreatedAt: now})
}

// GetPost loads a post with its like count.
func (s *Service) GetPost(ctx context.Context, id string) (Post, error) {
	return s.store.GetPost(ctx, id)
}

// ToggleLike flips the like and notifies the author when someone else likes the post.
// A notification persistence failure is returned after the like itself has been committed.
func (s *Service) ToggleLike(ctx context.Context, now time.Time, postID, userID string) (LikeResult, error) {
	res, err := s.store.ToggleLike(ctx, postID, userID, now)
	if err != nil {
		return LikeResult{}, err
	}
	if !res.Liked || res.AuthorID == userID {
		return res, nil
	}

	liker, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("social: load liker: %w", err)
	}
	if _, err := s.notifier.Dispatch(ctx, notification.Input{
		RecipientID: res.AuthorID,
		SenderID:    userID,
		Type:        notification.TypeLike,
		Message:     liker.Name() + " liked your post",
		Link:        "/posts/" + postID,
	}); err != nil {
		return res, fmt.Errorf("social: notify like: %w", err)
	}
	return res, nil
}
