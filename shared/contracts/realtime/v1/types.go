// Package v1 defines the Pulse notification protocol v1 contract.
//
// It is shared between the server and clients so the wire format has one source of truth.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol negotiated by the gateway.
const Subprotocol = "pulse.notify.v1"

// Type constants (wire-stable).
const (
	// TypeReady is sent once after the channel is registered (server -> client).
	TypeReady = "ready"

	// TypePing is an application-level liveness probe (client -> server).
	TypePing = "ping"
	// TypePong answers TypePing (server -> client).
	TypePong = "pong"

	// TypeNotification carries a freshly dispatched notification (server -> client).
	TypeNotification = "notification"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeReady, TypePing, TypePong, TypeNotification, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// ReadyPayload confirms the channel is live for UserID.
type ReadyPayload struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

// NotificationPayload mirrors a stored notification.
type NotificationPayload struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id,omitempty"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Link        string    `json:"link,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
