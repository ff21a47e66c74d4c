package warehouse

import (
	"context"
	"sync"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// MemoryStore is an in-memory JobStore and SnapshotStore for development
// and as the fallback target when the primary warehouse is down.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]ingest.CrawlJob
	events    map[string][]ingest.StatusEvent
	snapshots []ingest.SnapshotRow
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]ingest.CrawlJob),
		events: make(map[string][]ingest.StatusEvent),
	}
}

// CreateJob stores the job row.
func (s *MemoryStore) CreateJob(_ context.Context, job ingest.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// GetJob loads a stored job.
func (s *MemoryStore) GetJob(_ context.Context, jobID string) (ingest.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ingest.CrawlJob{}, ingest.ErrJobNotFound
	}
	return job, nil
}

// AppendEvent appends to the job's event log.
func (s *MemoryStore) AppendEvent(_ context.Context, event ingest.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.JobID] = append(s.events[event.JobID], event)
	return nil
}

// ListEvents returns a copy of the job's event log in append order.
func (s *MemoryStore) ListEvents(_ context.Context, jobID string) ([]ingest.StatusEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ingest.StatusEvent(nil), s.events[jobID]...), nil
}

// RecordSnapshot stores the snapshot summary row.
func (s *MemoryStore) RecordSnapshot(_ context.Context, row ingest.SnapshotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, row)
	return nil
}

// Snapshots returns a copy of all recorded snapshot rows.
func (s *MemoryStore) Snapshots() []ingest.SnapshotRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ingest.SnapshotRow(nil), s.snapshots...)
}
