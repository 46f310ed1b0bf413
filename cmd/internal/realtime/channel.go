package realtime

import (
	"errors"
	"sync"

	v1 "pulse/shared/contracts/realtime/v1"
)

var (
	// ErrChannelClosed is returned by Push once the channel's transport has shut down.
	ErrChannelClosed = errors.New("realtime: channel closed")
	// ErrBackpressure is returned by Push when the outbound queue is full.
	ErrBackpressure = errors.New("realtime: channel send queue full")
)

// Channel is one user's live connection as seen by producers.
//
// The outbound queue is never closed; done signals shutdown so a concurrent Push cannot panic.
type Channel struct {
	ID     string
	UserID string

	send      chan v1.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel constructs a Channel with a bounded outbound queue.
func NewChannel(id, userID string, queueSize int) *Channel {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	return &Channel{
		ID:     id,
		UserID: userID,
		send:   make(chan v1.Envelope, queueSize),
		done:   make(chan struct{}),
	}
}

// Push enqueues env without blocking.
func (c *Channel) Push(env v1.Envelope) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case <-c.done:
		return ErrChannelClosed
	case c.send <- env:
		return nil
	default:
		return ErrBackpressure
	}
}

// Outbound is drained by the connection's writer.
func (c *Channel) Outbound() <-chan v1.Envelope { return c.send }

// Done is closed when the channel shuts down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close marks the channel closed (idempotent).
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
