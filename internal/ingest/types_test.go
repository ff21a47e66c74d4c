package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatestStatusProjectsNewestEvent(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []StatusEvent{
		{JobID: "a", Status: JobStatusTriggered, Timestamp: base},
		{JobID: "a", Status: JobStatusDownloading, Timestamp: base.Add(time.Minute)},
		{JobID: "a", Status: JobStatusCompleted, Timestamp: base.Add(2 * time.Minute)},
	}
	require.Equal(t, JobStatusCompleted, LatestStatus(events))
}

func TestLatestStatusTieBreaksOnAppendOrder(t *testing.T) {
	t.Parallel()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []StatusEvent{
		{JobID: "a", Status: JobStatusDownloading, Timestamp: ts},
		{JobID: "a", Status: JobStatusDownloaded, Timestamp: ts},
	}
	require.Equal(t, JobStatusDownloaded, LatestStatus(events))
}

func TestLatestStatusEmptyLog(t *testing.T) {
	t.Parallel()
	require.Equal(t, JobStatus(""), LatestStatus(nil))
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()
	require.True(t, JobStatusCompleted.IsTerminal())
	require.True(t, JobStatusFailed.IsTerminal())
	require.False(t, JobStatusPolling.IsTerminal())
	require.False(t, JobStatusTriggered.IsTerminal())
}

func TestContextFromParamsDefaultsUnknown(t *testing.T) {
	t.Parallel()
	bc := ContextFromParams(map[string]any{"competitor": "acme", "category": ""})
	require.Equal(t, "acme", bc.Competitor)
	require.Equal(t, "unknown", bc.Brand)
	require.Equal(t, "unknown", bc.Category)
}

func TestProviderRequestErrorUnwraps(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	err := &ProviderRequestError{Provider: ProviderApify, Operation: "trigger", Err: cause}
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "apify")
}

func TestParseFailureBalanced(t *testing.T) {
	t.Parallel()
	balanced := &ParseFailure{ByteLen: 10, OpenBraces: 2, CloseBraces: 2}
	require.True(t, balanced.Balanced())
	unbalanced := &ParseFailure{ByteLen: 10, OpenBraces: 3, CloseBraces: 1}
	require.False(t, unbalanced.Balanced())
}
