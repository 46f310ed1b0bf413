package notification

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	v1 "pulse/shared/contracts/realtime/v1"
)

// Type tags a notification. The set is closed.
type Type string

const (
	TypeFollow  Type = "FOLLOW"
	TypeLike    Type = "LIKE"
	TypeComment Type = "COMMENT"
	TypeSystem  Type = "SYSTEM"
	TypeTest    Type = "TEST"
)

// Types lists every valid Type.
var Types = []Type{TypeFollow, TypeLike, TypeComment, TypeSystem, TypeTest}

// Valid reports whether t is one of Types.
func (t Type) Valid() bool {
	switch t {
	case TypeFollow, TypeLike, TypeComment, TypeSystem, TypeTest:
		return true
	default:
		return false
	}
}

// ParseType parses a wire tag. Matching is exact.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown notification type %q", ErrInvalidInput, s)
	}
	return t, nil
}

const (
	maxMessageChars = 500
	maxLinkChars    = 2048
)

var (
	ErrInvalidInput = errors.New("notification: invalid input")
	ErrNotFound     = errors.New("notification: not found")
)

// Event is a stored notification.
type Event struct {
	ID          string
	RecipientID string
	SenderID    string
	Type        Type
	Message     string
	Link        string
	Read        bool
	CreatedAt   time.Time
}

// Payload converts e to its wire form.
func (e Event) Payload() v1.NotificationPayload {
	return v1.NotificationPayload{
		ID:          e.ID,
		RecipientID: e.RecipientID,
		SenderID:    e.SenderID,
		Type:        string(e.Type),
		Message:     e.Message,
		Link:        e.Link,
		Read:        e.Read,
		CreatedAt:   e.CreatedAt,
	}
}

// Input is what producers pass to Dispatch.
type Input struct {
	RecipientID string
	SenderID    string
	Type        Type
	Message     string
	Link        string
}

// Validate checks Input against the stored-event constraints.
func (in Input) Validate() error {
	switch {
	case strings.TrimSpace(in.RecipientID) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown notification type %q", ErrInvalidInput, in.Type)
	case strings.TrimSpace(in.Message) == "":
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Message) > maxMessageChars:
		return fmt.Errorf("%w: message too long", ErrInvalidInput)
	case len(in.Link) > maxLinkChars:
		return fmt.Errorf("%w: link too long", ErrInvalidInput)
	}
	return nil
}
