package ingest

import (
	"context"
	"time"
)

// JobStore persists crawl jobs and their status event log. Implementations
// back onto insert-only tables: status changes are new StatusEvent rows,
// never in-place updates.
type JobStore interface {
	CreateJob(ctx context.Context, job CrawlJob) error
	GetJob(ctx context.Context, jobID string) (CrawlJob, error)
	AppendEvent(ctx context.Context, event StatusEvent) error
	ListEvents(ctx context.Context, jobID string) ([]StatusEvent, error)
}

// SnapshotStore records one summary row per downloaded snapshot.
type SnapshotStore interface {
	RecordSnapshot(ctx context.Context, row SnapshotRow) error
}

// SnapshotRow is the warehouse summary written after a successful download.
type SnapshotRow struct {
	JobID       string          `json:"crawl_id"`
	ExternalID  string          `json:"snapshot_id"`
	Platform    string          `json:"platform"`
	Context     BusinessContext `json:"context"`
	StoragePath string          `json:"file_path"`
	RecordCount int             `json:"record_count"`
	MediaCount  int             `json:"media_count"`
	IngestedAt  time.Time       `json:"ingestion_timestamp"`
}

// BlobStore writes raw payloads and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes lifecycle events to the message bus. Publishing is
// at-least-once and fire-and-forget; failures never abort a job.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
