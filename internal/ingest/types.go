// Package ingest defines core types shared across subsystems.
package ingest

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values recorded as status events.
const (
	JobStatusTriggered   JobStatus = "triggered"
	JobStatusPolling     JobStatus = "polling"
	JobStatusReady       JobStatus = "ready"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusDownloaded  JobStatus = "downloaded"
	JobStatusUploading   JobStatus = "uploading"
	JobStatusUploaded    JobStatus = "uploaded"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// IsTerminal reports whether a job in this status will never transition again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ProviderKind identifies which scraping provider a platform is bound to.
type ProviderKind string

// Supported provider kinds.
const (
	ProviderBrightData ProviderKind = "brightdata"
	ProviderApify      ProviderKind = "apify"
)

// Lifecycle event types published to the message bus.
const (
	EventCrawlTriggered     = "crawl-triggered"
	EventIngestionCompleted = "data-ingestion-completed"
	EventCrawlFailed        = "crawl-failed"
)

// EventSource identifies this service in every published event envelope.
const EventSource = "data-ingestion-service"

// CrawlJob represents the metadata persisted for each triggered crawl.
// ExternalID is the provider-assigned snapshot/run id; it is set exactly
// once at trigger time and never changes.
type CrawlJob struct {
	ID         string            `json:"crawl_id"`
	ExternalID string            `json:"external_id"`
	Platform   string            `json:"platform"`
	Provider   ProviderKind      `json:"provider"`
	Params     map[string]any    `json:"params"`
	Status     JobStatus         `json:"status"`
	ErrorText  string            `json:"error_text,omitempty"`
	Context    BusinessContext   `json:"context"`
	Created    time.Time         `json:"created_at"`
	Updated    time.Time         `json:"updated_at"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// BusinessContext carries the analytics dimensions a crawl is filed under.
// Missing dimensions default to "unknown" so storage paths stay well formed.
type BusinessContext struct {
	Competitor string `json:"competitor"`
	Brand      string `json:"brand"`
	Category   string `json:"category"`
}

// ContextFromParams extracts the business dimensions from raw trigger params.
func ContextFromParams(params map[string]any) BusinessContext {
	return BusinessContext{
		Competitor: stringParam(params, "competitor"),
		Brand:      stringParam(params, "brand"),
		Category:   stringParam(params, "category"),
	}
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// StatusEvent is one immutable status transition for a crawl job. Events are
// append-only; a job's current status is the status of its latest event.
type StatusEvent struct {
	JobID     string    `json:"crawl_id"`
	Status    JobStatus `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	ErrorText string    `json:"error_text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LatestStatus projects the current status from an event log. Events are
// compared by timestamp; on ties the later entry in the slice wins, matching
// append order. An empty log projects to the zero status.
func LatestStatus(events []StatusEvent) JobStatus {
	var (
		status JobStatus
		best   time.Time
	)
	for _, ev := range events {
		if status == "" || !ev.Timestamp.Before(best) {
			status = ev.Status
			best = ev.Timestamp
		}
	}
	return status
}

// ParsedRecord is one structured item recovered from a provider payload.
// Records are always dictionary shaped; bare scalars and arrays at the top
// level are treated as noise by the parser.
type ParsedRecord map[string]any

// MediaInfo summarizes the media attached to a single record.
type MediaInfo struct {
	HasMedia   bool     `json:"has_media"`
	MediaCount int      `json:"media_count"`
	MediaTypes []string `json:"media_types"`
}

// StatusSnapshot is the normalized view of a provider status check.
// NativeStatus preserves the provider's own vocabulary for diagnostics.
type StatusSnapshot struct {
	JobID        string    `json:"crawl_id"`
	ExternalID   string    `json:"external_id"`
	Status       JobStatus `json:"status"`
	NativeStatus string    `json:"native_status"`
	Ready        bool      `json:"ready_for_download"`
	Terminal     bool      `json:"-"`
	ErrorText    string    `json:"error_message,omitempty"`
	CheckedAt    time.Time `json:"timestamp"`
}

// TriggerResult is returned synchronously by the trigger operation.
type TriggerResult struct {
	JobID      string `json:"crawl_id"`
	ExternalID string `json:"external_id"`
	Background bool   `json:"background_polling"`
}

// DownloadResult summarizes a completed download pipeline run.
type DownloadResult struct {
	JobID       string `json:"crawl_id"`
	ExternalID  string `json:"external_id"`
	StoragePath string `json:"storage_path"`
	RecordCount int    `json:"record_count"`
	MediaCount  int    `json:"media_count"`
}
