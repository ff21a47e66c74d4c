package ingest

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned by job stores for unknown crawl IDs.
var ErrJobNotFound = errors.New("crawl job not found")

// InvalidParamsError indicates caller input failed platform validation.
// It maps to a 4xx response and is never retried.
type InvalidParamsError struct {
	Platform string
	Reason   string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params for platform %s: %s", e.Platform, e.Reason)
}

// ProviderRequestError indicates a transport failure or non-2xx response
// from a provider API. Retryable for status checks, not for trigger.
type ProviderRequestError struct {
	Provider   ProviderKind
	Operation  string
	StatusCode int
	Err        error
}

func (e *ProviderRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed with status %d: %v", e.Provider, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderRequestError) Unwrap() error { return e.Err }

// ProviderProtocolError indicates a 2xx response that violates the
// provider's contract, e.g. a trigger response without a job id.
type ProviderProtocolError struct {
	Provider ProviderKind
	Reason   string
}

func (e *ProviderProtocolError) Error() string {
	return fmt.Sprintf("%s protocol violation: %s", e.Provider, e.Reason)
}

// NotReadyError indicates download was attempted before the provider
// reported readiness. Callers should re-check status and retry later.
type NotReadyError struct {
	ExternalID   string
	NativeStatus string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("snapshot %s not ready for download (status %q)", e.ExternalID, e.NativeStatus)
}

// ParseFailure indicates a payload no parser tier could recover. The raw
// payload must be preserved for offline inspection; the diagnostics here
// describe it without carrying the bytes.
type ParseFailure struct {
	ByteLen      int
	OpenBraces   int
	CloseBraces  int
	Concatenated bool
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf(
		"unparseable payload: %d bytes, braces %d/%d, concatenated=%v",
		e.ByteLen, e.OpenBraces, e.CloseBraces, e.Concatenated,
	)
}

// Balanced reports whether the payload had matching brace counts.
func (e *ParseFailure) Balanced() bool { return e.OpenBraces == e.CloseBraces }

// PersistenceError indicates a storage or warehouse write failed after any
// configured retries.
type PersistenceError struct {
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s write failed: %v", e.Backend, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PollingTimeoutError indicates the poll attempt budget was exhausted
// without the provider reporting readiness.
type PollingTimeoutError struct {
	JobID    string
	Attempts int
	Elapsed  string
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("polling timeout for crawl %s after %d attempts (%s)", e.JobID, e.Attempts, e.Elapsed)
}
