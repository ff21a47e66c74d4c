// Package apify implements the provider contract for the Apify actor API.
package apify

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

// DefaultBaseURL is the production Apify API endpoint.
const DefaultBaseURL = "https://api.apify.com/v2"

// Client talks to the Apify v2 REST API. Jobs are actor "runs": starting
// an actor returns a run id, the run resource reports status, and a run's
// default dataset serves the scraped items once the run has succeeded.
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
		return nil, fmt.Errorf("apify api token is required")
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
func (c *Client) Kind() ingest.ProviderKind { return ingest.ProviderApify }

// runInfo is the subset of the Apify run resource the orchestrator needs.
type runInfo struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	StatusMessage    string `json:"statusMessage"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Trigger starts an actor run with the prepared input and returns the
// run id. actorID is the Apify actor handle, e.g. "clockworks~tiktok-scraper".
func (c *Client) Trigger(ctx context.Context, actorID string, params map[string]any) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/acts/%s/runs", c.baseURL, url.PathEscape(actorID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	c.setHeaders(req, "application/json")

	resp, err := c.requests.Do(req)
	if err != nil {
		return "", &ingest.ProviderRequestError{
			Provider: ingest.ProviderApify, Operation: "trigger", Err: err,
		}
	}
	defer closeBody(resp, c.logger)

	run, err := decodeRun(resp, "trigger", http.StatusCreated)
	if err != nil {
		return "", err
	}
	if run.ID == "" {
		return "", &ingest.ProviderProtocolError{
			Provider: ingest.ProviderApify,
			Reason:   "run response has no id",
		}
	}
	c.logger.Debug("apify actor run started",
		zap.String("actor_id", actorID),
		zap.String("run_id", run.ID),
	)
	return run.ID, nil
}

// CheckStatus fetches the run resource and maps Apify's vocabulary onto
// the shared tri-state outcome.
func (c *Client) CheckStatus(ctx context.Context, externalID string) (provider.Status, error) {
	run, err := c.getRun(ctx, externalID)
	if err != nil {
		return provider.Status{}, err
	}
	return mapStatus(run), nil
}

// Download re-checks the run, then fetches its default dataset items with
// the long-deadline client. A run that has not succeeded yet yields
// NotReadyError rather than a partial dataset.
func (c *Client) Download(ctx context.Context, externalID string, limit int) ([]byte, error) {
	run, err := c.getRun(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if run.Status != "SUCCEEDED" {
		return nil, &ingest.NotReadyError{ExternalID: externalID, NativeStatus: run.Status}
	}
	if run.DefaultDatasetID == "" {
		return nil, &ingest.ProviderProtocolError{
			Provider: ingest.ProviderApify,
			Reason:   "succeeded run has no defaultDatasetId",
		}
	}

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := fmt.Sprintf("%s/datasets/%s/items", c.baseURL, url.PathEscape(run.DefaultDatasetID))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.downloads.Do(req)
	if err != nil {
		return nil, &ingest.ProviderRequestError{
			Provider: ingest.ProviderApify, Operation: "download", Err: err,
		}
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ingest.ProviderRequestError{
			Provider:   ingest.ProviderApify,
			Operation:  "download",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(body)),
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ingest.ProviderRequestError{
			Provider: ingest.ProviderApify, Operation: "download", Err: err,
		}
	}
	c.logger.Debug("apify dataset downloaded",
		zap.String("run_id", externalID),
		zap.String("dataset_id", run.DefaultDatasetID),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

func (c *Client) getRun(ctx context.Context, runID string) (runInfo, error) {
	endpoint := fmt.Sprintf("%s/actor-runs/%s", c.baseURL, url.PathEscape(runID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return runInfo{}, fmt.Errorf("build run request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.requests.Do(req)
	if err != nil {
		return runInfo{}, &ingest.ProviderRequestError{
			Provider: ingest.ProviderApify, Operation: "check_status", Err: err,
		}
	}
	defer closeBody(resp, c.logger)

	return decodeRun(resp, "check_status", http.StatusOK)
}

func mapStatus(run runInfo) provider.Status {
	status := provider.Status{Native: run.Status}
	switch run.Status {
	case "SUCCEEDED":
		status.State = provider.StateReady
		status.Ready = true
	case "FAILED", "ABORTED", "TIMED-OUT", "ABORTING":
		status.State = provider.StateFailed
		status.ErrorText = run.StatusMessage
		if status.ErrorText == "" {
			status.ErrorText = fmt.Sprintf("apify reported status %q", run.Status)
		}
	default:
		// "READY", "RUNNING" and anything unrecognized are still pending.
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

func decodeRun(resp *http.Response, operation string, wantStatus int) (runInfo, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return runInfo{}, &ingest.ProviderRequestError{
			Provider: ingest.ProviderApify, Operation: operation, Err: err,
		}
	}
	if resp.StatusCode != wantStatus {
		return runInfo{}, &ingest.ProviderRequestError{
			Provider:   ingest.ProviderApify,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(body)),
		}
	}
	var payload struct {
		Data runInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return runInfo{}, &ingest.ProviderProtocolError{
			Provider: ingest.ProviderApify,
			Reason:   fmt.Sprintf("%s response is not a run envelope: %v", operation, err),
		}
	}
	return payload.Data, nil
}

func closeBody(resp *http.Response, logger *zap.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Warn("close response body failed", zap.Error(err))
	}
}
