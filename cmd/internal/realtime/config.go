package realtime

import (
	"time"

	"pulse/cmd/internal/env"
)

const (
	// Native clients send no Origin; browsers are still held to the allowlist.
	defaultOriginRequired = false
	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Config controls the websocket gateway.
type Config struct {
	// RequireAuth rejects upgrades without a valid access token. When false, a
	// user_id query parameter is accepted as the identity (local development only).
	RequireAuth bool

	OriginRequired bool
	AllowedOrigins []string

	// InsecureSkipVerify disables the websocket library's own origin check. Dev only.
	InsecureSkipVerify bool

	WriteTimeout time.Duration
	// ReadIdleTimeout closes a channel whose peer neither sends frames nor answers pings.
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RequireAuth:      true,
		OriginRequired:   defaultOriginRequired,
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:     defaultWriteTimeout,
		ReadIdleTimeout:  defaultReadIdle,
		SendQueueSize:    defaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// LoadConfigFromEnv reads PULSE_WS_* overrides on top of DefaultConfig.
func LoadConfigFromEnv() Config {
	d := DefaultConfig()
	cfg := Config{
		RequireAuth:        env.Bool("PULSE_WS_REQUIRE_AUTH", d.RequireAuth),
		OriginRequired:     env.Bool("PULSE_WS_ORIGIN_REQUIRED", d.OriginRequired),
		AllowedOrigins:     env.CSV("PULSE_WS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		InsecureSkipVerify: env.Bool("PULSE_WS_DEV_INSECURE", false),
		WriteTimeout:       env.Duration("PULSE_WS_WRITE_TIMEOUT", d.WriteTimeout),
		ReadIdleTimeout:    env.Duration("PULSE_WS_READ_IDLE_TIMEOUT", d.ReadIdleTimeout),
		SendQueueSize:      env.Int("PULSE_WS_SEND_QUEUE", d.SendQueueSize),
		HeartbeatEvery:     env.Duration("PULSE_WS_HEARTBEAT_INTERVAL", d.HeartbeatEvery),
		HeartbeatTimeout:   env.Duration("PULSE_WS_HEARTBEAT_TIMEOUT", d.HeartbeatTimeout),
		RateEvents:         env.Int("PULSE_WS_RATE_EVENTS", d.RateEvents),
		RateWindow:         env.Duration("PULSE_WS_RATE_WINDOW", d.RateWindow),
	}
	if cfg.SendQueueSize < minSendQueueSize {
		cfg.SendQueueSize = minSendQueueSize
	}
	return cfg
}
