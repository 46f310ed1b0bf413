package realtime

import (
	"log/slog"
	"sync"

	"pulse/cmd/internal/metrics"
)

// Registry maps a user to their single live channel.
//
// It only tracks discoverability: channels are opened and closed by their transport,
// which must call Unregister when a connection ends.
type Registry struct {
	log     *slog.Logger
	metrics metrics.Recorder

	mu     sync.RWMutex
	byUser map[string]*Channel
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger, m metrics.Recorder) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		metrics: metrics.OrNop(m),
		byUser:  make(map[string]*Channel),
	}
}

// Register makes ch the delivery target for userID and returns the channel it replaced, if any.
// A superseded channel is left open; it simply stops receiving pushes.
func (r *Registry) Register(userID string, ch *Channel) *Channel {
	r.mu.Lock()
	prev := r.byUser[userID]
	r.byUser[userID] = ch
	r.mu.Unlock()

	switch {
	case prev == nil:
		r.metrics.ChannelOpened()
	case prev != ch:
		r.metrics.ChannelSuperseded()
		r.log.Info("realtime.channel.superseded", "user_id", userID, "old_channel_id", prev.ID, "channel_id", ch.ID)
	default:
		return nil
	}
	return prev
}

// Unregister removes userID's entry only if it still points at ch.
// It reports whether an entry was removed.
func (r *Registry) Unregister(userID string, ch *Channel) bool {
	r.mu.Lock()
	cur, ok := r.byUser[userID]
	removed := ok && cur == ch
	if removed {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if removed {
		r.metrics.ChannelClosed()
	}
	return removed
}

// Lookup returns userID's live channel.
func (r *Registry) Lookup(userID string) (*Channel, bool) {
	r.mu.RLock()
	ch, ok := r.byUser[userID]
	r.mu.RUnlock()
	return ch, ok
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
