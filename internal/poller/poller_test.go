package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// scriptedEngine serves canned status snapshots per job id, advancing
// through the script one status check at a time.
type scriptedEngine struct {
	mu          sync.Mutex
	snapshots   map[string][]ingest.StatusSnapshot
	checkErrs   map[string]int
	calls       map[string]int
	downloads   map[string]int
	downloadErr error
	failures    []string
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{
		snapshots: make(map[string][]ingest.StatusSnapshot),
		checkErrs: make(map[string]int),
		calls:     make(map[string]int),
		downloads: make(map[string]int),
	}
}

func (e *scriptedEngine) CheckStatus(_ context.Context, jobID string) (ingest.StatusSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.checkErrs[jobID] > 0 {
		e.checkErrs[jobID]--
		return ingest.StatusSnapshot{}, errors.New("provider unavailable")
	}
	script := e.snapshots[jobID]
	idx := e.calls[jobID]
	if idx >= len(script) {
		idx = len(script) - 1
	}
	e.calls[jobID]++
	return script[idx], nil
}

func (e *scriptedEngine) Download(_ context.Context, jobID string) (ingest.DownloadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.downloadErr != nil {
		return ingest.DownloadResult{}, e.downloadErr
	}
	e.downloads[jobID]++
	return ingest.DownloadResult{JobID: jobID, RecordCount: 3}, nil
}

func (e *scriptedEngine) MarkFailed(_ context.Context, jobID, stage string, cause error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, jobID+" ["+stage+"]: "+cause.Error())
	return nil
}

func (e *scriptedEngine) downloadCount(jobID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.downloads[jobID]
}

func (e *scriptedEngine) failureLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.failures...)
}

func startPoller(t *testing.T, eng Engine, cfg Config) *Poller {
	t.Helper()
	p := New(eng, cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func fastConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     8,
		Interval:      time.Millisecond,
		MaxPolls:      200,
		FailureWindow: 3,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPollerDownloadsWhenReady(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	eng.snapshots["job-1"] = []ingest.StatusSnapshot{
		{JobID: "job-1", Status: ingest.JobStatusPolling},
		{JobID: "job-1", Status: ingest.JobStatusPolling},
		{JobID: "job-1", Status: ingest.JobStatusReady, Ready: true},
	}
	p := startPoller(t, eng, fastConfig())

	require.True(t, p.Watch("job-1"))
	waitFor(t, func() bool { return eng.downloadCount("job-1") == 1 })

	waitFor(t, func() bool { return p.Stats().InFlight == 0 })
	stats := p.Stats()
	require.Equal(t, 1, stats.Completed)
	require.Zero(t, stats.Failed)
	require.Empty(t, eng.failureLog())
}

func TestPollerToleratesEarlyTransientErrors(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	// A burst of errors larger than the failure window, early in a long
	// budget, must not kill the job: only errors in the final window do.
	eng.checkErrs["job-1"] = 8
	eng.snapshots["job-1"] = []ingest.StatusSnapshot{
		{JobID: "job-1", Status: ingest.JobStatusReady, Ready: true},
	}
	cfg := fastConfig()
	cfg.MaxPolls = 100
	cfg.FailureWindow = 5
	p := startPoller(t, eng, cfg)

	require.True(t, p.Watch("job-1"))
	waitFor(t, func() bool { return eng.downloadCount("job-1") == 1 })
	require.Empty(t, eng.failureLog())
	waitFor(t, func() bool { return p.Stats().Completed == 1 })
}

func TestPollerEscalatesErrorsNearBudgetEnd(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	eng.checkErrs["job-1"] = 1000
	eng.snapshots["job-1"] = []ingest.StatusSnapshot{
		{JobID: "job-1", Status: ingest.JobStatusPolling},
	}
	cfg := fastConfig()
	cfg.MaxPolls = 10
	cfg.FailureWindow = 3
	p := startPoller(t, eng, cfg)

	require.True(t, p.Watch("job-1"))
	waitFor(t, func() bool { return len(eng.failureLog()) == 1 })
	require.Contains(t, eng.failureLog()[0], "polling_exception")
	require.Contains(t, eng.failureLog()[0], "status check failed")
	waitFor(t, func() bool { return p.Stats().Failed == 1 })
}

func TestPollerTimesOutOnBudgetExhaustion(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	eng.snapshots["job-1"] = []ingest.StatusSnapshot{
		{JobID: "job-1", Status: ingest.JobStatusPolling},
	}
	cfg := fastConfig()
	cfg.MaxPolls = 5
	p := startPoller(t, eng, cfg)

	require.True(t, p.Watch("job-1"))
	waitFor(t, func() bool { return len(eng.failureLog()) == 1 })
	require.Contains(t, eng.failureLog()[0], "polling_timeout")
	require.Contains(t, eng.failureLog()[0], "polling timeout")
	require.Zero(t, eng.downloadCount("job-1"))
}

func TestPollerDeduplicatesJobs(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	eng.snapshots["job-1"] = []ingest.StatusSnapshot{
		{JobID: "job-1", Status: ingest.JobStatusPolling},
	}
	cfg := fastConfig()
	cfg.MaxPolls = 100000 // keep it in flight
	p := startPoller(t, eng, cfg)

	require.True(t, p.Watch("job-1"))
	waitFor(t, func() bool { return p.Stats().InFlight == 1 })
	require.False(t, p.Watch("job-1"))
	require.Equal(t, 1, p.Stats().InFlight)
}

func TestPollerSkipsAlreadyTerminalJobs(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	eng.snapshots["done"] = []ingest.StatusSnapshot{
		{JobID: "done", Status: ingest.JobStatusCompleted, Terminal: true},
	}
	eng.snapshots["dead"] = []ingest.StatusSnapshot{
		{JobID: "dead", Status: ingest.JobStatusFailed, Terminal: true},
	}
	p := startPoller(t, eng, fastConfig())

	require.True(t, p.Watch("done"))
	require.True(t, p.Watch("dead"))
	waitFor(t, func() bool {
		s := p.Stats()
		return s.Completed == 1 && s.Failed == 1
	})
	require.Empty(t, eng.failureLog())
	require.Zero(t, eng.downloadCount("done"))
}

func TestPollerRecordsProviderFailure(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	eng.snapshots["job-1"] = []ingest.StatusSnapshot{
		{JobID: "job-1", Status: ingest.JobStatusFailed, NativeStatus: "ABORTED"},
	}
	p := startPoller(t, eng, fastConfig())

	require.True(t, p.Watch("job-1"))
	waitFor(t, func() bool { return len(eng.failureLog()) == 1 })
	require.Contains(t, eng.failureLog()[0], "ABORTED")
}

func TestPollerRefusesWhenQueueFull(t *testing.T) {
	t.Parallel()
	eng := newScriptedEngine()
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	cfg.MaxPolls = 100000
	eng.snapshots["a"] = []ingest.StatusSnapshot{{JobID: "a", Status: ingest.JobStatusPolling}}
	eng.snapshots["b"] = []ingest.StatusSnapshot{{JobID: "b", Status: ingest.JobStatusPolling}}
	eng.snapshots["c"] = []ingest.StatusSnapshot{{JobID: "c", Status: ingest.JobStatusPolling}}
	p := startPoller(t, eng, cfg)

	require.True(t, p.Watch("a"))
	waitFor(t, func() bool { return p.Stats().QueueDepth == 0 })
	require.True(t, p.Watch("b"))
	require.False(t, p.Watch("c"))

	stats := p.Stats()
	require.Equal(t, 1, stats.QueueDepth)
}
