package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	v1 "pulse/shared/contracts/realtime/v1"
)

// ListOptions filters GET /notifications. Zero values use the server defaults.
type ListOptions struct {
	Limit       int
	OldestFirst bool
	UnreadOnly  bool
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.OldestFirst {
		q.Set("order", "oldest")
	}
	if o.UnreadOnly {
		q.Set("unread", "true")
	}
	return q
}

func (c *Client) Notifications(ctx context.Context, opts ListOptions) ([]v1.NotificationPayload, error) {
	var out struct {
		Notifications []v1.NotificationPayload `json:"notifications"`
	}
	err := c.do(ctx, call{method: http.MethodGet, path: "/notifications", query: opts.query(), out: &out})
	return out.Notifications, err
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, call{method: http.MethodGet, path: "/notifications/unread-count", out: &out})
	return out.Count, err
}

func (c *Client) MarkRead(ctx context.Context, id string) (v1.NotificationPayload, error) {
	var out struct {
		Notification v1.NotificationPayload `json:"notification"`
	}
	err := c.do(ctx, call{method: http.MethodPatch, path: "/notifications/" + url.PathEscape(id) + "/read", out: &out})
	return out.Notification, err
}

func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	err := c.do(ctx, call{method: http.MethodPatch, path: "/notifications/mark-all-read", out: &out})
	return out.Updated, err
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/notifications/" + url.PathEscape(id), want: http.StatusNoContent})
}

func (c *Client) ClearNotifications(ctx context.Context) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	err := c.do(ctx, call{method: http.MethodDelete, path: "/notifications", out: &out})
	return out.Deleted, err
}

// SendTest asks the server to dispatch a TEST notification to the caller.
func (c *Client) SendTest(ctx context.Context) (v1.NotificationPayload, error) {
	var out struct {
		Notification v1.NotificationPayload `json:"notification"`
	}
	err := c.do(ctx, call{method: http.MethodPost, path: "/notifications/test", out: &out, want: http.StatusCreated})
	return out.Notification, err
}

// Post is a social post.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeResult is the state after toggling a like.
type LikeResult struct {
	PostID string `json:"post_id"`
	Liked  bool   `json:"liked"`
	Likes  int    `json:"likes"`
}

func (c *Client) CreatePost(ctx context.Context, body string) (Post, error) {
	var out Post
	err := c.do(ctx, call{method: http.MethodPost, path: "/posts", in: map[string]string{"body": body}, out: &out, want: http.StatusCreated})
	return out, err
}

func (c *Client) ToggleLike(ctx context.Context, postID string) (LikeResult, error) {
	var out LikeResult
	err := c.do(ctx, call{method: http.MethodPost, path: "/posts/" + url.PathEscape(postID) + "/like", out: &out})
	return out, err
}
