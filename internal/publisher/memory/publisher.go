// Package memory contains an in-memory publisher for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/socialpulse/crawl-ingest/internal/publisher"
)

// Publisher stores published envelopes for inspection.
type Publisher struct {
	mu        sync.RWMutex
	envelopes []publisher.Envelope
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the enveloped event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, eventType string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, publisher.Wrap(eventType, payload))
	return fmt.Sprintf("memory-%d", len(p.envelopes)), nil
}

// Envelopes returns the recorded events.
func (p *Publisher) Envelopes() []publisher.Envelope {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	return out
}
