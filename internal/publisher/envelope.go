// Package publisher defines the lifecycle event envelope shared by all
// message bus implementations.
package publisher

import (
	"time"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// Envelope is the wire shape of every published lifecycle event.
type Envelope struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      any       `json:"data"`
}

// Wrap builds the envelope for a payload.
func Wrap(eventType string, payload any) Envelope {
	return Envelope{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    ingest.EventSource,
		Data:      payload,
	}
}
