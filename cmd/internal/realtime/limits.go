package realtime

import "time"

// Wire and resource limits for notification channels.
const (
	// Max bytes per inbound websocket frame. Clients only send pings.
	maxFrameBytes = 4 << 10

	defaultSendQueueSize = 64
	minSendQueueSize     = 8

	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute
	closeGrace          = 1 * time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Per-connection inbound frame budget.
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
