// Package main hosts the data ingestion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and crawl management endpoints. Trigger requests are
//     validated against a platform profile, handed to the engine, and the resulting job is registered with the
//     background poller before the 202 response goes out.
//   - Engine: internal/engine orchestrates the crawl lifecycle against the scraping providers (BrightData datasets,
//     Apify actors). Every status transition is an insert-only event row; a job's current status is a projection over
//     its event log, never an in-place update.
//   - Poller: triggered jobs flow into a bounded queue drained by a fixed worker pool. Workers check provider status
//     on an interval, run the download pipeline when data is ready, and escalate to a terminal failure when check
//     errors persist into the final window of the polling budget or the budget runs out. Context cancellation stops
//     workers cleanly on shutdown.
//   - Download pipeline: raw provider payloads go through a tiered JSON parser that recovers records from truncated
//     and concatenated payloads, then land in the configured blob store (memory/local/GCS) under a partitioned
//     snapshot path, with a summary row written to the warehouse and a completion event published to Pub/Sub.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler. The service is stateless across requests,
//     suitable for Cloud Run scale-out.
//
// Operational notes:
//   - Concurrency model: bounded watch queue + fixed poller pool; in-flight jobs are deduplicated so repeated triggers
//     never double-poll. Shutdown is coordinated via context cancellation propagated from main through the poller.
//   - Providers: a provider with no configured token stays unwired; platforms bound to it remain registered but are
//     refused at trigger time.
//   - Observability: zap logs carry crawl IDs and provider IDs at key transitions; Prometheus counters track triggers,
//     downloads, poll attempts, and failures per stage.
//   - Cloud Run: the HTTP server listens on the configured port. Health endpoints (/healthz, /readyz) remain
//     lightweight; the process reacts to SIGTERM for graceful drain of the poller pool.
//
// Quick checklist:
//   - Configure env vars: INGEST_SERVER_PORT, INGEST_PROVIDERS_BRIGHTDATA_TOKEN, INGEST_PROVIDERS_APIFY_TOKEN,
//     storage (INGEST_STORAGE_*), pubsub project/topic, and the database DSN when persistence beyond memory is
//     required.
//   - Run locally: go run ./cmd/ingestd -config config.yaml (or rely solely on env overrides).
package main
