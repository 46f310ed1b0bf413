// Package refresh recovers outbound calls that fail with an expired access token.
//
// A Coordinator is an http.RoundTripper. When a call comes back 401 it runs at most
// one refresh at a time; calls that fail while that refresh is in flight wait in a
// FIFO queue and are replayed once with the new credential, or all rejected with the
// same cause when the refresh fails.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"pulse/cmd/client/sessionstore"
)

const DefaultTimeout = 10 * time.Second

// logoutTimeout bounds the session teardown after a failed refresh, which may
// run after the refresh deadline has already passed.
const logoutTimeout = 5 * time.Second

var (
	// ErrSessionExpired matches every refresh failure handed back to callers.
	ErrSessionExpired = errors.New("refresh: session expired")

	// ErrNotReplayable is returned when a recovered call's body cannot be sent again.
	ErrNotReplayable = errors.New("refresh: request body cannot be replayed")

	ErrNoRefreshToken = errors.New("refresh: no refresh token")
)

// RefreshError is the single failure shared by the triggering call and every queued call.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSessionExpired, e.Cause)
}

func (e *RefreshError) Unwrap() error { return e.Cause }

func (e *RefreshError) Is(target error) bool { return target == ErrSessionExpired }

// Sessions is the part of the session store the coordinator drives.
type Sessions interface {
	Credential() (sessionstore.Session, bool)
	Renew(ctx context.Context, next sessionstore.Session) error
	Logout(ctx context.Context) error
}

// Func exchanges a refresh token for a new session.
type Func func(ctx context.Context, refreshToken string) (sessionstore.Session, error)

// Coordinator is safe for concurrent use.
type Coordinator struct {
	next     http.RoundTripper
	sessions Sessions
	refresh  Func
	log      *slog.Logger
	timeout  time.Duration
	exclude  func(*http.Request) bool

	mu         sync.Mutex
	refreshing bool
	waiters    []chan error

	// failedToken is the access token whose refresh last failed; late 401s for it get failedErr.
	failedToken string
	failedErr   error
}

type Option func(*Coordinator)

// WithTimeout bounds each refresh attempt. Hitting it counts as a refresh failure.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithExclude replaces the predicate that marks calls as never recoverable.
func WithExclude(fn func(*http.Request) bool) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.exclude = fn
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// New wraps next. A nil next uses http.DefaultTransport.
func New(next http.RoundTripper, sessions Sessions, refresh Func, opts ...Option) *Coordinator {
	if next == nil {
		next = http.DefaultTransport
	}
	c := &Coordinator{
		next:     next,
		sessions: sessions,
		refresh:  refresh,
		log:      slog.New(slog.DiscardHandler),
		timeout:  DefaultTimeout,
		exclude:  IsAuthCall,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAuthCall matches the login, registration and refresh endpoints.
func IsAuthCall(r *http.Request) bool {
	p := strings.TrimRight(r.URL.Path, "/")
	return strings.HasSuffix(p, "/auth/login") ||
		strings.HasSuffix(p, "/auth/register") ||
		strings.HasSuffix(p, "/auth/refresh")
}

type retriedKey struct{}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// Retried reports whether ctx belongs to a call already replayed after a refresh.
func Retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

type action uint8

const (
	passThrough action = iota
	replayNow
	lead
	wait
	reject
)

// RoundTrip attaches the stored credential and recovers its 401s. A request that
// carries its own Authorization header is sent as is and its 401 is returned unchanged.
func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	own := out.Header.Get("Authorization") != ""
	sent := ""
	if cur, ok := c.sessions.Credential(); ok && cur.AccessToken != "" && !own {
		out.Header.Set("Authorization", "Bearer "+cur.AccessToken)
		sent = cur.AccessToken
	}

	resp, err := c.next.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if own || c.exclude(req) || Retried(req.Context()) {
		return resp, nil
	}

	act, ch, failure := c.plan(sent)
	if act == passThrough {
		return resp, nil
	}
	drain(resp)

	switch act {
	case reject:
		return nil, failure
	case lead:
		if err := c.runRefresh(req.Context()); err != nil {
			return nil, err
		}
	case wait:
		select {
		case err := <-ch:
			if err != nil {
				return nil, err
			}
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return c.replay(req)
}

// plan decides what a 401 on a call that sent token means.
func (c *Coordinator) plan(token string) (action, chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshing {
		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		return wait, ch, nil
	}

	cur, ok := c.sessions.Credential()
	switch {
	case !ok && token != "" && token == c.failedToken:
		return reject, nil, c.failedErr
	case !ok:
		return passThrough, nil, nil
	case cur.AccessToken != token:
		// The credential changed after this call went out.
		return replayNow, nil, nil
	}

	c.refreshing = true
	return lead, nil, nil
}

func (c *Coordinator) runRefresh(parent context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	started := time.Now()
	expired, _ := c.sessions.Credential()
	err := c.doRefresh(ctx)
	if err != nil {
		err = &RefreshError{Cause: err}
		c.logout(parent)
	}

	c.mu.Lock()
	c.refreshing = false
	if err != nil {
		c.failedToken, c.failedErr = expired.AccessToken, err
	} else {
		c.failedToken, c.failedErr = "", nil
	}
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("refresh.fail", "waiters", len(waiters), "dur", time.Since(started), "err", err)
	} else {
		c.log.Debug("refresh.ok", "waiters", len(waiters), "dur", time.Since(started))
	}
	for _, ch := range waiters {
		ch <- err
	}
	return err
}

func (c *Coordinator) logout(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), logoutTimeout)
	defer cancel()
	if err := c.sessions.Logout(ctx); err != nil {
		c.log.Warn("refresh.logout.fail", "err", err)
	}
}

func (c *Coordinator) doRefresh(ctx context.Context) error {
	cur, ok := c.sessions.Credential()
	if !ok || cur.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	type result struct {
		sess sessionstore.Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.refresh(ctx, cur.RefreshToken)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		return c.sessions.Renew(ctx, r.sess)
	case <-ctx.Done():
		return fmt.Errorf("refresh timed out: %w", ctx.Err())
	}
}

// replay sends req once more with the current credential. Its 401 is final.
func (c *Coordinator) replay(req *http.Request) (*http.Response, error) {
	again := req.Clone(markRetried(req.Context()))
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, ErrNotReplayable
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotReplayable, err)
		}
		again.Body = body
	}
	again.Header.Del("Authorization")
	return c.RoundTrip(again)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
