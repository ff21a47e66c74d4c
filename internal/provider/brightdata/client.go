// Package brightdata implements the provider contract for the BrightData
// datasets API.
package brightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
	"github.com/socialpulse/crawl-ingest/internal/provider"
)

// DefaultBaseURL is the production BrightData datasets endpoint.
const DefaultBaseURL = "https://api.brightdata.com/datasets/v3"

// Client talks to the BrightData datasets v3 API. Jobs are "snapshots":
// a trigger call returns a snapshot id, /progress reports its state, and
// /snapshot serves the collected payload once ready.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	requests  *http.Client
	downloads *http.Client
	logger    *zap.Logger
}

// New constructs a Client from the shared HTTP config.
func New(cfg provider.HTTPConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("brightdata api token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	requests, downloads := cfg.Clients()
	return &Client{
		baseURL:   cfg.BaseURL,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		requests:  requests,
		downloads: downloads,
		logger:    logger,
	}, nil
}

// Kind reports the provider kind.
func (c *Client) Kind() ingest.ProviderKind { return ingest.ProviderBrightData }

// Trigger starts a dataset crawl and returns the snapshot id. BrightData
// expects the crawl parameters wrapped in a one-element array, with the
// dataset id passed as a query parameter.
func (c *Client) Trigger(ctx context.Context, datasetID string, params map[string]any) (string, error) {
	body, err := json.Marshal([]map[string]any{params})
	if err != nil {
		return "", fmt.Errorf("marshal trigger params: %w", err)
	}

	endpoint := fmt.Sprintf("%s/trigger?%s", c.baseURL, url.Values{
		"dataset_id":     {datasetID},
		"include_errors": {"true"},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	c.setHeaders(req, "application/json")

	resp, err := c.requests.Do(req)
	if err != nil {
		return "", &ingest.ProviderRequestError{
			Provider: ingest.ProviderBrightData, Operation: "trigger", Err: err,
		}
	}
	defer closeBody(resp, c.logger)

	var payload struct {
		SnapshotID string `json:"snapshot_id"`
		Error      string `json:"error"`
	}
	if err := decodeResponse(resp, "trigger", &payload); err != nil {
		return "", err
	}
	if payload.SnapshotID == "" {
		return "", &ingest.ProviderProtocolError{
			Provider: ingest.ProviderBrightData,
			Reason:   "trigger response has no snapshot_id",
		}
	}
	c.logger.Debug("brightdata crawl triggered",
		zap.String("dataset_id", datasetID),
		zap.String("snapshot_id", payload.SnapshotID),
	)
	return payload.SnapshotID, nil
}

// CheckStatus queries snapshot progress and maps BrightData's vocabulary
// onto the shared tri-state outcome.
func (c *Client) CheckStatus(ctx context.Context, externalID string) (provider.Status, error) {
	endpoint := fmt.Sprintf("%s/progress/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return provider.Status{}, fmt.Errorf("build status request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.requests.Do(req)
	if err != nil {
		return provider.Status{}, &ingest.ProviderRequestError{
			Provider: ingest.ProviderBrightData, Operation: "check_status", Err: err,
		}
	}
	defer closeBody(resp, c.logger)

	var payload struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := decodeResponse(resp, "check_status", &payload); err != nil {
		return provider.Status{}, err
	}
	return mapStatus(payload.Status, payload.Error), nil
}

// Download fetches the snapshot payload using the long-deadline client.
// BrightData has no server-side limit parameter; callers truncate after
// parsing when a limit is requested.
func (c *Client) Download(ctx context.Context, externalID string, _ int) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/snapshot/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	c.setHeaders(req, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.downloads.Do(req)
	if err != nil {
		return nil, &ingest.ProviderRequestError{
			Provider: ingest.ProviderBrightData, Operation: "download", Err: err,
		}
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ingest.ProviderRequestError{
			Provider:   ingest.ProviderBrightData,
			Operation:  "download",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(body)),
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ingest.ProviderRequestError{
			Provider: ingest.ProviderBrightData, Operation: "download", Err: err,
		}
	}
	c.logger.Debug("brightdata snapshot downloaded",
		zap.String("snapshot_id", externalID),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

func mapStatus(native, errText string) provider.Status {
	status := provider.Status{Native: native, ErrorText: errText}
	switch native {
	case "ready", "completed":
		status.State = provider.StateReady
		status.Ready = true
	case "failed", "error", "cancelled":
		status.State = provider.StateFailed
		if status.ErrorText == "" {
			status.ErrorText = fmt.Sprintf("brightdata reported status %q", native)
		}
	default:
		// "running", "collecting", "building" and anything unrecognized
		// are treated as still pending.
		status.State = provider.StatePending
	}
	return status
}

func (c *Client) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
}

func decodeResponse(resp *http.Response, operation string, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ingest.ProviderRequestError{
			Provider: ingest.ProviderBrightData, Operation: operation, Err: err,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return &ingest.ProviderRequestError{
			Provider:   ingest.ProviderBrightData,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(body)),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ingest.ProviderProtocolError{
			Provider: ingest.ProviderBrightData,
			Reason:   fmt.Sprintf("%s response is not a JSON object: %v", operation, err),
		}
	}
	return nil
}

func closeBody(resp *http.Response, logger *zap.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Warn("close response body failed", zap.Error(err))
	}
}
