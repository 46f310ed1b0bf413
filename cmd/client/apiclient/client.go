// Package apiclient is the outbound call layer for the Pulse HTTP and WebSocket API.
//
// Every authenticated call goes through a refresh.Coordinator, so an expired access
// token is renewed once and the call replayed without the caller noticing.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pulse/cmd/client/refresh"
	"pulse/cmd/client/sessionstore"
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pulse api: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("pulse api: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

// Client is safe for concurrent use.
type Client struct {
	base     *url.URL
	sessions *sessionstore.Store
	log      *slog.Logger

	http  *http.Client // authenticated, through the coordinator
	plain *http.Client // refresh calls bypass the coordinator

	requestTimeout time.Duration
}

type config struct {
	transport      http.RoundTripper
	log            *slog.Logger
	requestTimeout time.Duration
	refreshTimeout time.Duration
}

type Option func(*config)

// WithTransport sets the underlying transport. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option { return func(c *config) { c.transport = rt } }

func WithLogger(log *slog.Logger) Option { return func(c *config) { c.log = log } }

// WithRequestTimeout bounds each non-streaming call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option { return func(c *config) { c.requestTimeout = d } }

func WithRefreshTimeout(d time.Duration) Option { return func(c *config) { c.refreshTimeout = d } }

// New builds a Client for baseURL that reads and renews credentials in sessions.
func New(baseURL string, sessions *sessionstore.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: base url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("apiclient: base url missing host")
	}
	if sessions == nil {
		return nil, errors.New("apiclient: nil session store")
	}

	cfg := config{
		transport:      http.DefaultTransport,
		log:            slog.New(slog.DiscardHandler),
		requestTimeout: 15 * time.Second,
		refreshTimeout: refresh.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{
		base:           u,
		sessions:       sessions,
		log:            cfg.log,
		plain:          &http.Client{Transport: cfg.transport},
		requestTimeout: cfg.requestTimeout,
	}
	coord := refresh.New(cfg.transport, sessions, c.Refresh,
		refresh.WithTimeout(cfg.refreshTimeout),
		refresh.WithLogger(cfg.log),
	)
	// No client-level Timeout: the WebSocket dial rejects it and contexts bound every call.
	c.http = &http.Client{Transport: coord}
	return c, nil
}

// Sessions returns the store this client reads credentials from.
func (c *Client) Sessions() *sessionstore.Store { return c.sessions }

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

type call struct {
	method string
	path   string
	query  url.Values
	in     any
	out    any
	want   int
	plain  bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var body io.Reader
	if cl.in != nil {
		b, err := json.Marshal(cl.in)
		if err != nil {
			return fmt.Errorf("apiclient: encode %s: %w", cl.path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.endpoint(cl.path, cl.query), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.http
	if cl.plain {
		hc = c.plain
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	want := cl.want
	if want == 0 {
		want = http.StatusOK
	}
	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", cl.path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode, Code: strings.ToLower(http.StatusText(resp.StatusCode))}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&env); err == nil && env.Error.Code != "" {
		ae.Code = env.Error.Code
		ae.Message = env.Error.Message
	}
	return ae
}
