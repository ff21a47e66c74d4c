// Package poller runs the background polling loop that shepherds
// triggered crawl jobs to completion: a fixed worker pool drains a
// bounded queue of job ids, each worker polling the provider until the
// job is ready, failed, or out of budget.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/engine"
	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// Engine is the slice of the crawl engine the poller drives.
type Engine interface {
	CheckStatus(ctx context.Context, jobID string) (ingest.StatusSnapshot, error)
	Download(ctx context.Context, jobID string) (ingest.DownloadResult, error)
	MarkFailed(ctx context.Context, jobID, stage string, cause error) error
}

// Config controls pool sizing and poll budgets. The budget is counted
// in attempts: MaxPolls checks spaced Interval apart. Status-check
// errors are tolerated as transient unless they land within the final
// FailureWindow attempts of the budget.
type Config struct {
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxPolls      int           `mapstructure:"max_polls"`
	FailureWindow int           `mapstructure:"failure_window"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 120
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = 5
	}
	return c
}

// Stats is a point-in-time view of the pool, exposed on the health
// endpoint.
type Stats struct {
	Workers    int `json:"workers"`
	QueueDepth int `json:"queue_depth"`
	InFlight   int `json:"in_flight"`
	Watched    int `json:"watched_total"`
	Completed  int `json:"completed_total"`
	Failed     int `json:"failed_total"`
}

// Poller owns the worker pool. Create with New, start with Run, feed
// with Watch.
type Poller struct {
	engine Engine
	cfg    Config
	logger *zap.Logger
	queue  chan string

	mu        sync.Mutex
	inflight  map[string]struct{}
	watched   int
	completed int
	failed    int
}

// New constructs a Poller; Run must be called before Watch has any effect.
func New(eng Engine, cfg Config, logger *zap.Logger) *Poller {
	cfg = cfg.withDefaults()
	return &Poller{
		engine:   eng,
		cfg:      cfg,
		logger:   logger.Named("poller"),
		queue:    make(chan string, cfg.QueueSize),
		inflight: make(map[string]struct{}),
	}
}

// Run starts the worker pool and blocks until the context finishes and
// all workers have drained.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-p.queue:
					p.watch(ctx, jobID)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

// Watch schedules background polling for a job. It reports whether the
// job was accepted: duplicates of a job already being polled and a full
// queue are both refused, never blocked on.
func (p *Poller) Watch(jobID string) bool {
	p.mu.Lock()
	if _, dup := p.inflight[jobID]; dup {
		p.mu.Unlock()
		return false
	}
	p.inflight[jobID] = struct{}{}
	p.watched++
	p.mu.Unlock()

	select {
	case p.queue <- jobID:
		queueDepth.Set(float64(len(p.queue)))
		return true
	default:
		p.release(jobID)
		p.logger.Warn("poll queue full, job not scheduled", zap.String("crawl_id", jobID))
		queueRejects.Inc()
		return false
	}
}

// Stats snapshots pool state.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:    p.cfg.Workers,
		QueueDepth: len(p.queue),
		InFlight:   len(p.inflight),
		Watched:    p.watched,
		Completed:  p.completed,
		Failed:     p.failed,
	}
}

func (p *Poller) release(jobID string) {
	p.mu.Lock()
	delete(p.inflight, jobID)
	p.mu.Unlock()
}

// watch polls one job until a terminal outcome. Status-check errors are
// tolerated as transient for most of the budget; only errors landing in
// the final FailureWindow attempts escalate, since by then there is no
// room left to recover. Exhausting the attempt budget is its own
// distinct terminal failure.
func (p *Poller) watch(ctx context.Context, jobID string) {
	defer p.release(jobID)
	logger := p.logger.With(zap.String("crawl_id", jobID))

	started := time.Now()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for attempts := 1; ; attempts++ {
		pollAttempts.Inc()
		snapshot, err := p.engine.CheckStatus(ctx, jobID)
		switch {
		case err != nil:
			logger.Warn("status check failed",
				zap.Int("attempt", attempts),
				zap.Int("max_polls", p.cfg.MaxPolls),
				zap.Error(err),
			)
			if attempts >= p.cfg.MaxPolls-p.cfg.FailureWindow {
				p.escalate(ctx, jobID, engine.StagePollError, fmt.Errorf(
					"status check failed with %d attempts remaining: %w",
					p.cfg.MaxPolls-attempts, err))
				return
			}

		case snapshot.Status == ingest.JobStatusCompleted:
			logger.Info("job already completed, nothing to poll")
			p.markCompleted()
			return

		case snapshot.Status == ingest.JobStatusFailed:
			if snapshot.Terminal {
				// Already recorded in the event log; nothing left to do.
				p.markFailed()
				return
			}
			p.escalate(ctx, jobID, engine.StagePoll, fmt.Errorf(
				"provider reports failure: %s", snapshot.NativeStatus))
			return

		case snapshot.Ready:
			result, err := p.engine.Download(ctx, jobID)
			var notReady *ingest.NotReadyError
			if errors.As(err, &notReady) {
				// Raced the provider between check and download; keep polling.
				break
			}
			if err != nil {
				logger.Error("download pipeline failed", zap.Error(err))
				p.markFailed()
				return
			}
			logger.Info("background ingestion completed",
				zap.Int("attempts", attempts),
				zap.Int("record_count", result.RecordCount),
				zap.Duration("elapsed", time.Since(started)),
			)
			p.markCompleted()
			return
		}

		if attempts >= p.cfg.MaxPolls {
			p.escalate(ctx, jobID, engine.StagePollTimeout, &ingest.PollingTimeoutError{
				JobID:    jobID,
				Attempts: attempts,
				Elapsed:  time.Since(started).Round(time.Second).String(),
			})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// escalate records a terminal failure for the job.
func (p *Poller) escalate(ctx context.Context, jobID, stage string, cause error) {
	if err := p.engine.MarkFailed(ctx, jobID, stage, cause); err != nil {
		p.logger.Error("recording poll failure",
			zap.String("crawl_id", jobID),
			zap.Error(err),
		)
	}
	p.markFailed()
}

func (p *Poller) markCompleted() {
	p.mu.Lock()
	p.completed++
	p.mu.Unlock()
	pollCompleted.Inc()
}

func (p *Poller) markFailed() {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
	pollFailed.Inc()
}
