package realtime

import (
	"time"

	"pulse/cmd/identity/ids"
)

// NewChannelID returns a ULID identifying one live connection.
func NewChannelID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
func NewEnvelopeID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return ""
	}
	return id
}
