package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// triggersTotal counts crawls successfully started at a provider.
	triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_crawls_triggered_total",
		Help: "The total number of crawl jobs triggered, by platform.",
	}, []string{"platform"})
	// triggerFailures counts trigger requests rejected by a provider.
	triggerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_trigger_failures_total",
		Help: "The total number of failed trigger requests, by platform.",
	}, []string{"platform"})
	// statusCheckFailures counts provider status checks that errored.
	statusCheckFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_status_check_failures_total",
		Help: "The total number of failed provider status checks, by provider.",
	}, []string{"provider"})
	// downloadsCompleted counts pipeline runs that reached completion.
	downloadsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_downloads_completed_total",
		Help: "The total number of completed download pipelines, by platform.",
	}, []string{"platform"})
	// recordsIngested counts individual records landed in storage.
	recordsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_total",
		Help: "The total number of records ingested, by platform.",
	}, []string{"platform"})
	// failuresTotal counts terminal job failures by pipeline stage.
	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_crawl_failures_total",
		Help: "The total number of crawl jobs that failed, by platform and stage.",
	}, []string{"platform", "stage"})
	// publishFailures counts lifecycle events that could not be published.
	publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_publish_failures_total",
		Help: "The total number of event publish failures, by event type.",
	}, []string{"event_type"})
	// uploadRetries counts retried blob uploads.
	uploadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_upload_retries_total",
		Help: "The total number of retried snapshot uploads.",
	})
)
