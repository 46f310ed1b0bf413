// Package social is the posts-and-likes collaborator that produces LIKE notifications.
package social

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("social: invalid input")
	ErrPostNotFound = errors.New("social: post not found")
)

const maxBodyChars = 5000

// Post is a user's post.
type Post struct {
	ID        string
	AuthorID  string
	Body      string
	CreatedAt time.Time
	Likes     int
}

// LikeResult is the state after a like toggle.
type LikeResult struct {
	PostID   string
	AuthorID string
	Liked    bool
	Likes    int
}

// Store persists posts and likes.
type Store interface {
	CreatePost(ctx context.Context, p Post) (Post, error)
	GetPost(ctx context.Context, id string) (Post, error)

	// ToggleLike flips userID's like on postID atomically.
	ToggleLike(ctx context.Context, postID, userID string, now time.Time) (LikeResult, error)
}
