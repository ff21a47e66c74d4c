// Package provider defines the capability contract normalizing
// trigger/check-status/download semantics across scraping providers.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// TriState is the shared outcome vocabulary for provider status checks.
type TriState string

// Status check outcomes.
const (
	StatePending TriState = "pending"
	StateReady   TriState = "ready"
	StateFailed  TriState = "failed"
)

// Status is the normalized result of one provider status check. Native
// preserves the provider's own status string for diagnostics.
type Status struct {
	State     TriState
	Native    string
	Ready     bool
	ErrorText string
}

// Client is implemented once per provider kind. Implementations are
// stateless and safe to share across concurrent jobs; every method makes at
// most one logical remote call.
type Client interface {
	// Kind identifies the provider behind this client.
	Kind() ingest.ProviderKind

	// Trigger starts a remote job and returns the provider-assigned id.
	Trigger(ctx context.Context, datasetID string, params map[string]any) (string, error)

	// CheckStatus maps the provider's native status onto the shared
	// tri-state outcome.
	CheckStatus(ctx context.Context, externalID string) (Status, error)

	// Download fetches the raw payload for a ready job. limit <= 0 means
	// no limit. Implementations must budget a materially longer timeout
	// than trigger/status calls.
	Download(ctx context.Context, externalID string, limit int) ([]byte, error)
}

// HTTPConfig carries the shared transport knobs for REST-backed clients.
type HTTPConfig struct {
	BaseURL         string
	Token           string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	UserAgent       string
}

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
	defaultUserAgent       = "socialpulse/crawl-ingest"
)

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = defaultDownloadTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// Clients builds the pair of http.Clients used by REST-backed providers:
// a short-deadline client for trigger/status and a long-deadline one for
// payload downloads.
func (c HTTPConfig) Clients() (requests, downloads *http.Client) {
	cfg := c.withDefaults()
	return &http.Client{Timeout: cfg.RequestTimeout}, &http.Client{Timeout: cfg.DownloadTimeout}
}
