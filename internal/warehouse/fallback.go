package warehouse

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// Store combines the two warehouse roles a backend fulfills.
type Store interface {
	ingest.JobStore
	ingest.SnapshotStore
}

// FallbackStore writes to a primary warehouse and falls back to a
// secondary when the primary is unavailable, so a database outage
// degrades durability instead of dropping crawl history. Rows landed in
// the secondary are not replayed back automatically; reconciliation is
// an operational task.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    *zap.Logger
}

// NewFallbackStore wraps primary with a secondary fallback.
func NewFallbackStore(primary, secondary Store, logger *zap.Logger) *FallbackStore {
	return &FallbackStore{
		primary:   primary,
		secondary: secondary,
		logger:    logger.Named("warehouse"),
	}
}

// CreateJob writes to the primary, falling back on error.
func (s *FallbackStore) CreateJob(ctx context.Context, job ingest.CrawlJob) error {
	if err := s.primary.CreateJob(ctx, job); err != nil {
		s.logger.Warn("primary warehouse rejected job, using fallback",
			zap.String("crawl_id", job.ID), zap.Error(err))
		fallbackWrites.Inc()
		return s.secondary.CreateJob(ctx, job)
	}
	return nil
}

// GetJob reads from the primary; unknown or unreachable jobs are looked
// up in the fallback before giving up.
func (s *FallbackStore) GetJob(ctx context.Context, jobID string) (ingest.CrawlJob, error) {
	job, err := s.primary.GetJob(ctx, jobID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, ingest.ErrJobNotFound) {
		s.logger.Warn("primary warehouse read failed, trying fallback",
			zap.String("crawl_id", jobID), zap.Error(err))
	}
	return s.secondary.GetJob(ctx, jobID)
}

// AppendEvent writes to the primary, falling back on error.
func (s *FallbackStore) AppendEvent(ctx context.Context, event ingest.StatusEvent) error {
	if err := s.primary.AppendEvent(ctx, event); err != nil {
		s.logger.Warn("primary warehouse rejected event, using fallback",
			zap.String("crawl_id", event.JobID), zap.Error(err))
		fallbackWrites.Inc()
		return s.secondary.AppendEvent(ctx, event)
	}
	return nil
}

// ListEvents merges the event logs of both backends, so transitions
// recorded during a primary outage still project into the job status.
func (s *FallbackStore) ListEvents(ctx context.Context, jobID string) ([]ingest.StatusEvent, error) {
	primaryEvents, primaryErr := s.primary.ListEvents(ctx, jobID)
	secondaryEvents, secondaryErr := s.secondary.ListEvents(ctx, jobID)
	if primaryErr != nil && secondaryErr != nil {
		return nil, primaryErr
	}
	if primaryErr != nil {
		s.logger.Warn("primary warehouse read failed, serving fallback events",
			zap.String("crawl_id", jobID), zap.Error(primaryErr))
		return secondaryEvents, nil
	}
	return append(primaryEvents, secondaryEvents...), nil
}

// RecordSnapshot writes to the primary, falling back on error.
func (s *FallbackStore) RecordSnapshot(ctx context.Context, row ingest.SnapshotRow) error {
	if err := s.primary.RecordSnapshot(ctx, row); err != nil {
		s.logger.Warn("primary warehouse rejected snapshot row, using fallback",
			zap.String("crawl_id", row.JobID), zap.Error(err))
		fallbackWrites.Inc()
		return s.secondary.RecordSnapshot(ctx, row)
	}
	return nil
}
