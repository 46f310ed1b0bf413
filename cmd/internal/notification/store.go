package notification

import "context"

// Order selects list ordering by creation.
type Order uint8

const (
	OldestFirst Order = iota
	NewestFirst
)

// ListOptions narrows List. A zero Limit means DefaultListLimit.
type ListOptions struct {
	Order      Order
	Limit      int
	UnreadOnly bool
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Store is the durable event store. Every operation is scoped to a recipient;
// an ID belonging to someone else behaves like a missing ID.
type Store interface {
	Create(ctx context.Context, e Event) (Event, error)
	List(ctx context.Context, recipientID string, opts ListOptions) ([]Event, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string) (Event, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	Delete(ctx context.Context, recipientID, id string) error
	DeleteAll(ctx context.Context, recipientID string) (int, error)
}
