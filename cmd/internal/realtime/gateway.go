package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pulse/cmd/internal/auth/session"
	"pulse/cmd/internal/httpx"
	"pulse/cmd/internal/metrics"
	v1 "pulse/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

// Authenticator validates access tokens presented on the upgrade request.
type Authenticator interface {
	ValidateAccessToken(ctx context.Context, token string, now time.Time) (session.AccessClaims, error)
}

// sessionToucher is implemented by authenticators that record session activity.
type sessionToucher interface {
	TouchSession(ctx context.Context, now time.Time, sessionID string) error
}

var errMissingToken = errors.New("missing access token")

// Gateway is the WebSocket entrypoint for live notifications.
//
// Each accepted connection becomes a Channel registered for its user. The gateway
// owns the connection lifecycle and removes the registry entry before tearing down.
type Gateway struct {
	log      *slog.Logger
	registry *Registry
	auth     Authenticator
	metrics  metrics.Recorder

	cfg            Config
	originPatterns []string
}

// NewGateway constructs a Gateway. auth may be nil only when cfg.RequireAuth is false.
func NewGateway(log *slog.Logger, registry *Registry, auth Authenticator, cfg Config, m metrics.Recorder) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(log, m)
	}
	if cfg.SendQueueSize < minSendQueueSize {
		cfg.SendQueueSize = minSendQueueSize
	}
	return &Gateway{
		log:            log,
		registry:       registry,
		auth:           auth,
		metrics:        metrics.OrNop(m),
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

// Registry returns the registry connections are published to.
func (g *Gateway) Registry() *Registry { return g.registry }

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "origin not allowed")
		return
	}

	claims, err := g.authenticate(r)
	if err != nil {
		if errors.Is(err, errMissingToken) || session.IsCredentialError(err) {
			g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing access token")
			return
		}
		g.log.Error("ws.auth.fail", "err", err, "remote", r.RemoteAddr)
		httpx.WriteError(w, http.StatusServiceUnavailable, "auth_unavailable", "could not verify token")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.InsecureSkipVerify,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	g.touch(r.Context(), claims.SessionID)
	g.serveChannel(r.Context(), conn, claims.UserID)
}

// touch records channel activity on the session. Failures are logged only.
func (g *Gateway) touch(ctx context.Context, sessionID string) {
	t, ok := g.auth.(sessionToucher)
	if !ok || sessionID == "" {
		return
	}
	if err := t.TouchSession(ctx, time.Now().UTC(), sessionID); err != nil {
		g.log.Warn("ws.session.touch.fail", "session_id", sessionID, "err", err)
	}
}

func (g *Gateway) authenticate(r *http.Request) (session.AccessClaims, error) {
	token := httpx.BearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}

	if token == "" {
		if !g.cfg.RequireAuth {
			if uid := strings.TrimSpace(r.URL.Query().Get("user_id")); uid != "" {
				return session.AccessClaims{UserID: uid}, nil
			}
		}
		return session.AccessClaims{}, errMissingToken
	}
	if g.auth == nil {
		return session.AccessClaims{}, errors.New("authenticator not configured")
	}
	return g.auth.ValidateAccessToken(r.Context(), token, time.Now().UTC())
}

func (g *Gateway) serveChannel(parent context.Context, conn *websocket.Conn, userID string) {
	now := time.Now().UTC()
	channelID, err := NewChannelID(now)
	if err != nil {
		g.log.Error("ws.channel_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	ch := NewChannel(channelID, userID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g.registry.Register(userID, ch)
	g.log.Info("ws.channel.open", "user_id", userID, "channel_id", channelID)

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			// Unregister first so no dispatch targets a channel mid-teardown.
			g.registry.Unregister(userID, ch)
			ch.Close()
			_ = conn.Close(code, reason)
			cancel()
			g.log.Info("ws.channel.close", "user_id", userID, "channel_id", channelID, "reason", reason)
		})
	}

	readyPayload, _ := json.Marshal(v1.ReadyPayload{ChannelID: channelID, UserID: userID})
	_ = ch.Push(newEnvelope(v1.TypeReady, readyPayload, now))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch.Done():
				return
			case env := <-ch.Outbound():
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "channel_id", channelID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	// lastSeen is refreshed by inbound frames and answered pings.
	var lastSeen atomic.Int64
	lastSeen.Store(time.Now().UnixNano())

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, ch, &lastSeen, shutdown)
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		env, err := readEnvelope(ctx, conn)
		if err == nil || errors.Is(err, errBadJSON) {
			lastSeen.Store(time.Now().UnixNano())
		}

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ch, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "channel_id", channelID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.metrics.RateLimited("ws")
			g.trySendError(ch, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ch, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypePing:
			pong := newEnvelope(v1.TypePong, env.Payload, now)
			pong.ID = env.ID
			if err := ch.Push(pong); err != nil {
				g.log.Debug("ws.pong.drop", "channel_id", channelID, "err", err)
			}
		default:
			g.trySendError(ch, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

// heartbeat pings the peer and closes the channel once it has been silent for
// ReadIdleTimeout. Push-only clients stay alive by answering pings.
func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, ch *Channel, lastSeen *atomic.Int64, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch.Done():
			return
		case <-t.C:
			if idle := time.Since(time.Unix(0, lastSeen.Load())); idle > g.cfg.ReadIdleTimeout {
				g.log.Info("ws.idle", "channel_id", ch.ID, "idle", idle)
				shutdown(websocket.StatusGoingAway, "idle timeout")
				return
			}

			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()

			if err == nil {
				failures = 0
				lastSeen.Store(time.Now().UnixNano())
				continue
			}
			failures++
			g.log.Info("ws.ping.fail", "channel_id", ch.ID, "failures", failures, "err", err)
			if failures >= maxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (g *Gateway) trySendError(ch *Channel, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	_ = ch.Push(newEnvelope(v1.TypeError, p, time.Now().UTC()))
}

// ---- envelope IO ----

var errBadJSON = errors.New("realtime: malformed envelope")

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(ts),
		TS:      ts,
		Payload: payload,
	}
}

// NewNotificationEnvelope wraps a notification for delivery over a channel.
func NewNotificationEnvelope(p v1.NotificationPayload, now time.Time) (v1.Envelope, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return v1.Envelope{}, err
	}
	return newEnvelope(v1.TypeNotification, b, now), nil
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	default:
		return readErrUnknown
	}
}
