// Package engine implements the crawl lifecycle: triggering jobs at a
// provider, checking their progress, and running the download pipeline
// that lands parsed snapshots in storage and the warehouse.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
	"github.com/socialpulse/crawl-ingest/internal/parser"
	"github.com/socialpulse/crawl-ingest/internal/platform"
	"github.com/socialpulse/crawl-ingest/internal/provider"
)

// Pipeline stage names recorded on failure events. The poll stages are
// distinct so subscribers can tell an exhausted budget from a run of
// status-check errors or a provider-reported failure.
const (
	StageTrigger     = "trigger"
	StagePoll        = "poll"
	StagePollError   = "polling_exception"
	StagePollTimeout = "polling_timeout"
	StageDownload    = "download"
	StageParse       = "parse"
	StageUpload      = "upload"
	StagePersist     = "persist"
)

// Config controls Engine behavior.
type Config struct {
	// DownloadLimit caps the number of records requested per download for
	// providers that support server-side limits.
	DownloadLimit int
}

// Engine orchestrates crawl jobs across platform profiles and provider
// clients. All state lives in the stores; the engine itself is stateless
// and safe for concurrent use.
type Engine struct {
	registry  *platform.Registry
	providers map[ingest.ProviderKind]provider.Client
	jobs      ingest.JobStore
	snapshots ingest.SnapshotStore
	blobs     ingest.BlobStore
	publisher ingest.Publisher
	parser    *parser.Parser
	clock     ingest.Clock
	ids       ingest.IDGenerator
	retry     *RetryPolicy
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Engine.
func New(
	registry *platform.Registry,
	providers map[ingest.ProviderKind]provider.Client,
	jobs ingest.JobStore,
	snapshots ingest.SnapshotStore,
	blobs ingest.BlobStore,
	publisher ingest.Publisher,
	p *parser.Parser,
	clock ingest.Clock,
	ids ingest.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.DownloadLimit <= 0 {
		cfg.DownloadLimit = 1000
	}
	return &Engine{
		registry:  registry,
		providers: providers,
		jobs:      jobs,
		snapshots: snapshots,
		blobs:     blobs,
		publisher: publisher,
		parser:    p,
		clock:     clock,
		ids:       ids,
		retry:     NewRetryPolicy(),
		cfg:       cfg,
		logger:    logger.Named("engine"),
	}
}

// Trigger validates the request against the platform profile, starts a
// crawl at the provider, persists the new job, and announces it on the
// bus. The returned job id is the service's own identifier; the provider
// id is kept alongside it and never reused as the primary key.
func (e *Engine) Trigger(ctx context.Context, platformName string, params map[string]any) (ingest.TriggerResult, error) {
	profile, err := e.registry.Get(platformName)
	if err != nil {
		return ingest.TriggerResult{}, err
	}
	if err := profile.ValidateParams(params); err != nil {
		return ingest.TriggerResult{}, err
	}
	client, err := e.client(profile.Provider())
	if err != nil {
		return ingest.TriggerResult{}, err
	}

	prepared := profile.PrepareRequestParams(params)
	externalID, err := client.Trigger(ctx, profile.DatasetID(), prepared)
	if err != nil {
		triggerFailures.WithLabelValues(profile.Name()).Inc()
		return ingest.TriggerResult{}, fmt.Errorf("triggering %s crawl: %w", profile.Name(), err)
	}

	jobID, err := e.ids.NewID()
	if err != nil {
		return ingest.TriggerResult{}, fmt.Errorf("generating crawl id: %w", err)
	}
	now := e.clock.Now()
	job := ingest.CrawlJob{
		ID:         jobID,
		ExternalID: externalID,
		Platform:   profile.Name(),
		Provider:   profile.Provider(),
		Params:     params,
		Status:     ingest.JobStatusTriggered,
		Context:    ingest.ContextFromParams(params),
		Created:    now,
		Updated:    now,
	}
	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return ingest.TriggerResult{}, fmt.Errorf("persisting crawl job: %w", err)
	}
	if err := e.appendEvent(ctx, jobID, ingest.JobStatusTriggered, StageTrigger, ""); err != nil {
		return ingest.TriggerResult{}, err
	}

	triggersTotal.WithLabelValues(profile.Name()).Inc()
	e.logger.Info("crawl triggered",
		zap.String("crawl_id", jobID),
		zap.String("external_id", externalID),
		zap.String("platform", profile.Name()),
		zap.String("provider", string(profile.Provider())),
	)
	e.publish(ctx, ingest.EventCrawlTriggered, map[string]any{
		"crawl_id":    jobID,
		"external_id": externalID,
		"platform":    profile.Name(),
		"provider":    string(profile.Provider()),
		"competitor":  job.Context.Competitor,
		"brand":       job.Context.Brand,
		"category":    job.Context.Category,
	})

	return ingest.TriggerResult{JobID: jobID, ExternalID: externalID}, nil
}

// Job returns the stored job with its status projected from the event
// log, so callers always see the latest transition.
func (e *Engine) Job(ctx context.Context, jobID string) (ingest.CrawlJob, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return ingest.CrawlJob{}, err
	}
	events, err := e.jobs.ListEvents(ctx, jobID)
	if err != nil {
		return ingest.CrawlJob{}, err
	}
	if status := ingest.LatestStatus(events); status != "" {
		job.Status = status
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Status == status && events[i].ErrorText != "" {
				job.ErrorText = events[i].ErrorText
				break
			}
		}
	}
	return job, nil
}

// CheckStatus asks the provider how a job is doing. It is strictly
// read-only: no status events are appended and nothing is published, so
// callers can poll it as often as they like.
func (e *Engine) CheckStatus(ctx context.Context, jobID string) (ingest.StatusSnapshot, error) {
	job, err := e.Job(ctx, jobID)
	if err != nil {
		return ingest.StatusSnapshot{}, err
	}
	snapshot := ingest.StatusSnapshot{
		JobID:      job.ID,
		ExternalID: job.ExternalID,
		CheckedAt:  e.clock.Now(),
	}
	if job.Status.IsTerminal() {
		snapshot.Status = job.Status
		snapshot.NativeStatus = string(job.Status)
		snapshot.Terminal = true
		snapshot.ErrorText = job.ErrorText
		return snapshot, nil
	}

	client, err := e.client(job.Provider)
	if err != nil {
		return ingest.StatusSnapshot{}, err
	}
	status, err := client.CheckStatus(ctx, job.ExternalID)
	if err != nil {
		statusCheckFailures.WithLabelValues(string(job.Provider)).Inc()
		return ingest.StatusSnapshot{}, fmt.Errorf("checking status of crawl %s: %w", jobID, err)
	}

	snapshot.NativeStatus = status.Native
	snapshot.Ready = status.Ready
	snapshot.ErrorText = status.ErrorText
	switch status.State {
	case provider.StateReady:
		snapshot.Status = ingest.JobStatusReady
	case provider.StateFailed:
		snapshot.Status = ingest.JobStatusFailed
	default:
		snapshot.Status = ingest.JobStatusPolling
	}
	return snapshot, nil
}

// Download runs the full ingestion pipeline for a job whose provider
// data is ready: download, parse, upload, warehouse row, completion
// event. The pipeline is idempotent; re-running it for a completed job
// re-lands the same snapshot at the same storage path.
func (e *Engine) Download(ctx context.Context, jobID string) (ingest.DownloadResult, error) {
	job, err := e.Job(ctx, jobID)
	if err != nil {
		return ingest.DownloadResult{}, err
	}
	if job.Status == ingest.JobStatusFailed {
		return ingest.DownloadResult{}, fmt.Errorf("crawl %s already failed: %s", jobID, job.ErrorText)
	}
	profile, err := e.registry.Get(job.Platform)
	if err != nil {
		return ingest.DownloadResult{}, err
	}
	client, err := e.client(job.Provider)
	if err != nil {
		return ingest.DownloadResult{}, err
	}

	status, err := client.CheckStatus(ctx, job.ExternalID)
	if err != nil {
		return ingest.DownloadResult{}, e.fail(ctx, job, StageDownload, err)
	}
	if status.State == provider.StateFailed {
		return ingest.DownloadResult{}, e.fail(ctx, job, StageDownload,
			fmt.Errorf("provider reports failure: %s", status.Native))
	}
	if !status.Ready {
		return ingest.DownloadResult{}, &ingest.NotReadyError{
			ExternalID:   job.ExternalID,
			NativeStatus: status.Native,
		}
	}

	if err := e.appendEvent(ctx, job.ID, ingest.JobStatusDownloading, StageDownload, ""); err != nil {
		return ingest.DownloadResult{}, err
	}
	raw, err := client.Download(ctx, job.ExternalID, e.cfg.DownloadLimit)
	if err != nil {
		return ingest.DownloadResult{}, e.fail(ctx, job, StageDownload, err)
	}

	records, err := e.parser.Parse(raw)
	if err != nil {
		e.preserveRawResponse(ctx, job, raw)
		return ingest.DownloadResult{}, e.fail(ctx, job, StageParse, err)
	}
	if err := e.appendEvent(ctx, job.ID, ingest.JobStatusDownloaded, StageDownload, ""); err != nil {
		return ingest.DownloadResult{}, err
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return ingest.DownloadResult{}, e.fail(ctx, job, StageUpload, err)
	}
	path := profile.StoragePath(job.ExternalID, job.Context, e.clock.Now())
	if err := e.appendEvent(ctx, job.ID, ingest.JobStatusUploading, StageUpload, ""); err != nil {
		return ingest.DownloadResult{}, err
	}
	uri, err := e.upload(ctx, path, payload)
	if err != nil {
		return ingest.DownloadResult{}, e.fail(ctx, job, StageUpload, err)
	}
	if err := e.appendEvent(ctx, job.ID, ingest.JobStatusUploaded, StageUpload, ""); err != nil {
		return ingest.DownloadResult{}, err
	}

	mediaCount := 0
	for _, record := range records {
		mediaCount += profile.ExtractMediaInfo(record).MediaCount
	}
	row := ingest.SnapshotRow{
		JobID:       job.ID,
		ExternalID:  job.ExternalID,
		Platform:    job.Platform,
		Context:     job.Context,
		StoragePath: path,
		RecordCount: len(records),
		MediaCount:  mediaCount,
		IngestedAt:  e.clock.Now(),
	}
	if err := e.snapshots.RecordSnapshot(ctx, row); err != nil {
		return ingest.DownloadResult{}, e.fail(ctx, job, StagePersist, err)
	}

	if err := e.appendEvent(ctx, job.ID, ingest.JobStatusCompleted, StagePersist, ""); err != nil {
		return ingest.DownloadResult{}, err
	}
	downloadsCompleted.WithLabelValues(job.Platform).Inc()
	recordsIngested.WithLabelValues(job.Platform).Add(float64(len(records)))
	e.logger.Info("crawl completed",
		zap.String("crawl_id", job.ID),
		zap.String("storage_path", uri),
		zap.Int("record_count", len(records)),
		zap.Int("media_count", mediaCount),
	)
	e.publish(ctx, ingest.EventIngestionCompleted, map[string]any{
		"crawl_id":     job.ID,
		"external_id":  job.ExternalID,
		"platform":     job.Platform,
		"storage_path": path,
		"record_count": len(records),
		"media_count":  mediaCount,
		"competitor":   job.Context.Competitor,
		"brand":        job.Context.Brand,
		"category":     job.Context.Category,
	})

	return ingest.DownloadResult{
		JobID:       job.ID,
		ExternalID:  job.ExternalID,
		StoragePath: path,
		RecordCount: len(records),
		MediaCount:  mediaCount,
	}, nil
}

// MarkFailed records a terminal failure for a job and announces it on
// the bus. The poller uses it for escalation and budget exhaustion.
func (e *Engine) MarkFailed(ctx context.Context, jobID, stage string, cause error) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	e.fail(ctx, job, stage, cause)
	return nil
}

// fail appends the terminal failed event and publishes crawl-failed.
// Publishing is best effort; the returned error is always the cause.
func (e *Engine) fail(ctx context.Context, job ingest.CrawlJob, stage string, cause error) error {
	failuresTotal.WithLabelValues(job.Platform, stage).Inc()
	e.logger.Error("crawl failed",
		zap.String("crawl_id", job.ID),
		zap.String("stage", stage),
		zap.Error(cause),
	)
	if err := e.appendEvent(ctx, job.ID, ingest.JobStatusFailed, stage, cause.Error()); err != nil {
		e.logger.Error("recording failure event", zap.String("crawl_id", job.ID), zap.Error(err))
	}
	e.publish(ctx, ingest.EventCrawlFailed, map[string]any{
		"crawl_id":    job.ID,
		"external_id": job.ExternalID,
		"platform":    job.Platform,
		"stage":       stage,
		"error":       cause.Error(),
	})
	return cause
}

// preserveRawResponse stashes an unparseable payload in blob storage so
// the bytes survive for offline inspection. Best effort: a stash error
// is logged and the parse failure still stands.
func (e *Engine) preserveRawResponse(ctx context.Context, job ingest.CrawlJob, raw []byte) {
	path := fmt.Sprintf("failed_responses/%s_%s.txt",
		job.ExternalID, e.clock.Now().UTC().Format("20060102T150405Z"))
	uri, err := e.blobs.PutObject(ctx, path, "text/plain", raw)
	if err != nil {
		e.logger.Warn("preserving raw response",
			zap.String("crawl_id", job.ID),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	e.logger.Info("raw response preserved",
		zap.String("crawl_id", job.ID),
		zap.String("storage_path", uri),
		zap.Int("byte_len", len(raw)),
	)
}

func (e *Engine) appendEvent(ctx context.Context, jobID string, status ingest.JobStatus, stage, errText string) error {
	event := ingest.StatusEvent{
		JobID:     jobID,
		Status:    status,
		Stage:     stage,
		ErrorText: errText,
		Timestamp: e.clock.Now(),
	}
	if err := e.jobs.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("appending %s event for crawl %s: %w", status, jobID, err)
	}
	return nil
}

// publish sends a lifecycle event without letting bus trouble touch the
// pipeline outcome.
func (e *Engine) publish(ctx context.Context, eventType string, payload map[string]any) {
	if _, err := e.publisher.Publish(ctx, eventType, payload); err != nil {
		publishFailures.WithLabelValues(eventType).Inc()
		e.logger.Warn("publishing event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (e *Engine) client(kind ingest.ProviderKind) (provider.Client, error) {
	client, ok := e.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no %s client configured", kind)
	}
	return client, nil
}

// upload pushes the payload to blob storage with jittered retries, since
// transient object-store errors are common enough to paper over.
func (e *Engine) upload(ctx context.Context, path string, payload []byte) (string, error) {
	var (
		uri string
		err error
	)
	for attempt := 0; ; attempt++ {
		uri, err = e.blobs.PutObject(ctx, path, "application/json", payload)
		if err == nil {
			return uri, nil
		}
		if !e.retry.ShouldRetry(err, attempt) {
			return "", err
		}
		uploadRetries.Inc()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.retry.Backoff(attempt)):
		}
	}
}
