package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// RateLimitConfig caps outbound request rate against one provider API.
// Both providers meter API usage; staying under their limits beats
// handling 429 responses after the fact.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type rateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps a client with a token bucket. A non-positive rate
// returns the client unchanged.
func NewRateLimited(inner Client, cfg RateLimitConfig) Client {
	if cfg.RequestsPerSecond <= 0 {
		return inner
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

func (c *rateLimitedClient) Kind() ingest.ProviderKind {
	return c.inner.Kind()
}

func (c *rateLimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (c *rateLimitedClient) Trigger(ctx context.Context, datasetID string, params map[string]any) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.inner.Trigger(ctx, datasetID, params)
}

func (c *rateLimitedClient) CheckStatus(ctx context.Context, externalID string) (Status, error) {
	if err := c.wait(ctx); err != nil {
		return Status{}, err
	}
	return c.inner.CheckStatus(ctx, externalID)
}

func (c *rateLimitedClient) Download(ctx context.Context, externalID string, limit int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.Download(ctx, externalID, limit)
}
