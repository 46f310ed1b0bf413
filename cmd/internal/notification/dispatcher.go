package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulse/cmd/identity/ids"
	"pulse/cmd/internal/metrics"
	"pulse/cmd/internal/realtime"
)

// ChannelDirectory resolves a recipient's live channel.
type ChannelDirectory interface {
	Lookup(userID string) (*realtime.Channel, bool)
}

// Dispatcher is the single entry point producers use to emit notifications.
type Dispatcher struct {
	store    Store
	channels ChannelDirectory
	log      *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher. channels may be nil, in which case nothing is pushed.
func NewDispatcher(store Store, channels ChannelDirectory, log *slog.Logger, m metrics.Recorder) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		channels: channels,
		log:      log,
		metrics:  metrics.OrNop(m),
		now:      time.Now,
	}
}

// Dispatch validates and persists in, then makes one non-blocking push attempt to the
// recipient's live channel. Only validation and persistence errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (Event, error) {
	if err := in.Validate(); err != nil {
		return Event{}, err
	}

	now := d.now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Event{}, fmt.Errorf("notification: id: %w", err)
	}

	stored, err := d.store.Create(ctx, Event{
		ID:          id,
		RecipientID: in.RecipientID,
		SenderID:    in.SenderID,
		Type:        in.Type,
		Message:     in.Message,
		Link:        in.Link,
		CreatedAt:   now,
	})
	if err != nil {
		return Event{}, fmt.Errorf("notification: persist: %w", err)
	}
	d.metrics.NotificationDispatched(string(stored.Type))

	d.push(stored, now)
	return stored, nil
}

func (d *Dispatcher) push(e Event, now time.Time) {
	if d.channels == nil {
		d.metrics.PushOutcome(metrics.PushAbsent)
		return
	}
	ch, ok := d.channels.Lookup(e.RecipientID)
	if !ok {
		d.metrics.PushOutcome(metrics.PushAbsent)
		d.log.Debug("notify.push.absent", "notification_id", e.ID, "recipient_id", e.RecipientID)
		return
	}

	env, err := realtime.NewNotificationEnvelope(e.Payload(), now)
	if err == nil {
		err = ch.Push(env)
	}
	if err != nil {
		d.metrics.PushOutcome(metrics.PushDropped)
		d.log.Warn("notify.push.drop", "notification_id", e.ID, "recipient_id", e.RecipientID, "channel_id", ch.ID, "err", err)
		return
	}
	d.metrics.PushOutcome(metrics.PushDelivered)
}
