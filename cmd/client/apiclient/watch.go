package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	v1 "pulse/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxFrameBytes = 1 << 20

// WatchHandler receives events from a live channel. Nil fields are skipped.
type WatchHandler struct {
	Ready        func(v1.ReadyPayload)
	Notification func(v1.NotificationPayload)
	Error        func(v1.ErrorPayload)
}

// Watch opens the live channel and blocks until ctx is done or the connection drops.
// It returns nil when ctx ends the watch.
func (c *Client) Watch(ctx context.Context, h WatchHandler) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(maxFrameBytes)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("apiclient: watch read: %w", err)
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("watch.bad_json", "err", err)
			continue
		}
		if err := env.Validate(); err != nil {
			c.log.Warn("watch.bad_envelope", "err", err)
			continue
		}
		c.deliver(env, h)
	}
}

func (c *Client) deliver(env v1.Envelope, h WatchHandler) {
	switch env.Type {
	case v1.TypeReady:
		var p v1.ReadyPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil && h.Ready != nil {
			h.Ready(p)
		}
	case v1.TypeNotification:
		var p v1.NotificationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.log.Warn("watch.bad_notification", "err", err)
			return
		}
		if h.Notification != nil {
			h.Notification(p)
		}
	case v1.TypeError:
		var p v1.ErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil && h.Error != nil {
			h.Error(p)
		}
	}
}

// dial goes through the coordinator so an expired token is refreshed before the upgrade.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + "/ws"

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient:   c.http,
		Subprotocols: []string{v1.Subprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, errors.Join(&APIError{Status: resp.StatusCode, Code: "handshake_failed"}, err)
		}
		return nil, fmt.Errorf("apiclient: watch dial: %w", err)
	}
	if conn.Subprotocol() != v1.Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return nil, fmt.Errorf("apiclient: server did not select %s", v1.Subprotocol)
	}
	return conn, nil
}
