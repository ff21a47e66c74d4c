package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

type countingClient struct {
	calls int
}

func (c *countingClient) Kind() ingest.ProviderKind { return ingest.ProviderBrightData }

func (c *countingClient) Trigger(context.Context, string, map[string]any) (string, error) {
	c.calls++
	return "snap-1", nil
}

func (c *countingClient) CheckStatus(context.Context, string) (Status, error) {
	c.calls++
	return Status{State: StateReady, Ready: true}, nil
}

func (c *countingClient) Download(context.Context, string, int) ([]byte, error) {
	c.calls++
	return []byte(`{}`), nil
}

func TestRateLimitDisabledReturnsInnerClient(t *testing.T) {
	t.Parallel()
	inner := &countingClient{}
	client := NewRateLimited(inner, RateLimitConfig{})
	require.Same(t, Client(inner), client)
}

func TestRateLimitPassesCallsThrough(t *testing.T) {
	t.Parallel()
	inner := &countingClient{}
	client := NewRateLimited(inner, RateLimitConfig{RequestsPerSecond: 1000, Burst: 10})

	ctx := context.Background()
	id, err := client.Trigger(ctx, "ds", nil)
	require.NoError(t, err)
	require.Equal(t, "snap-1", id)

	status, err := client.CheckStatus(ctx, "snap-1")
	require.NoError(t, err)
	require.True(t, status.Ready)

	_, err = client.Download(ctx, "snap-1", 0)
	require.NoError(t, err)
	require.Equal(t, 3, inner.calls)
	require.Equal(t, ingest.ProviderBrightData, client.Kind())
}

func TestRateLimitThrottles(t *testing.T) {
	t.Parallel()
	inner := &countingClient{}
	// Burst 1 at 20 rps: the second call must wait roughly 50ms.
	client := NewRateLimited(inner, RateLimitConfig{RequestsPerSecond: 20, Burst: 1})

	ctx := context.Background()
	start := time.Now()
	_, err := client.CheckStatus(ctx, "snap-1")
	require.NoError(t, err)
	_, err = client.CheckStatus(ctx, "snap-1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestRateLimitHonorsContext(t *testing.T) {
	t.Parallel()
	inner := &countingClient{}
	client := NewRateLimited(inner, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Trigger(ctx, "ds", nil)
	require.NoError(t, err) // burst token available

	_, err = client.Trigger(ctx, "ds", nil)
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)
}
