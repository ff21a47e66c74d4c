// Package warehouse persists crawl jobs, their status event logs, and
// snapshot summary rows. Tables are insert-only: a status change is a
// new event row, never an update, so the full lifecycle history of
// every job survives.
package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/socialpulse/crawl-ingest/internal/ingest"
)

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements ingest.JobStore and ingest.SnapshotStore on
// Postgres. Assumed schema:
//
//	CREATE TABLE crawl_jobs (
//		crawl_id UUID PRIMARY KEY,
//		external_id TEXT NOT NULL,
//		platform TEXT NOT NULL,
//		provider TEXT NOT NULL,
//		params JSONB,
//		competitor TEXT, brand TEXT, category TEXT,
//		created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE crawl_status_events (
//		crawl_id UUID NOT NULL,
//		status TEXT NOT NULL,
//		stage TEXT,
//		error_text TEXT,
//		event_ts TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE snapshot_records (
//		crawl_id UUID NOT NULL,
//		snapshot_id TEXT NOT NULL,
//		platform TEXT NOT NULL,
//		competitor TEXT, brand TEXT, category TEXT,
//		file_path TEXT NOT NULL,
//		record_count INT NOT NULL,
//		media_count INT NOT NULL,
//		ingestion_timestamp TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool querier
}

// NewPostgresStore creates a Postgres-backed store using the provided config.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool querier) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CreateJob inserts the immutable job row.
func (s *PostgresStore) CreateJob(ctx context.Context, job ingest.CrawlJob) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal job params: %w", err)
	}
	query := `
		INSERT INTO crawl_jobs
			(crawl_id, external_id, platform, provider, params, competitor, brand, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.pool.Exec(ctx, query,
		job.ID,
		job.ExternalID,
		job.Platform,
		string(job.Provider),
		params,
		job.Context.Competitor,
		job.Context.Brand,
		job.Context.Category,
		job.Created,
	); err != nil {
		return &ingest.PersistenceError{Backend: "postgres", Err: fmt.Errorf("insert crawl job: %w", err)}
	}
	return nil
}

// GetJob loads the job row. The returned status is the trigger baseline;
// callers project the current status from the event log.
func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (ingest.CrawlJob, error) {
	query := `
		SELECT external_id, platform, provider, params, competitor, brand, category, created_at
		FROM crawl_jobs
		WHERE crawl_id = $1
	`
	var (
		job    ingest.CrawlJob
		params []byte
	)
	job.ID = jobID
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ExternalID,
		&job.Platform,
		&job.Provider,
		&params,
		&job.Context.Competitor,
		&job.Context.Brand,
		&job.Context.Category,
		&job.Created,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.CrawlJob{}, ingest.ErrJobNotFound
	}
	if err != nil {
		return ingest.CrawlJob{}, &ingest.PersistenceError{Backend: "postgres", Err: fmt.Errorf("select crawl job: %w", err)}
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return ingest.CrawlJob{}, fmt.Errorf("unmarshal job params: %w", err)
		}
	}
	job.Status = ingest.JobStatusTriggered
	job.Updated = job.Created
	return job, nil
}

// AppendEvent inserts one status event row.
func (s *PostgresStore) AppendEvent(ctx context.Context, event ingest.StatusEvent) error {
	query := `
		INSERT INTO crawl_status_events (crawl_id, status, stage, error_text, event_ts)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.pool.Exec(ctx, query,
		event.JobID,
		string(event.Status),
		event.Stage,
		event.ErrorText,
		event.Timestamp,
	); err != nil {
		return &ingest.PersistenceError{Backend: "postgres", Err: fmt.Errorf("insert status event: %w", err)}
	}
	return nil
}

// ListEvents returns the job's event log in append order.
func (s *PostgresStore) ListEvents(ctx context.Context, jobID string) ([]ingest.StatusEvent, error) {
	query := `
		SELECT status, stage, error_text, event_ts
		FROM crawl_status_events
		WHERE crawl_id = $1
		ORDER BY event_ts ASC
	`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, &ingest.PersistenceError{Backend: "postgres", Err: fmt.Errorf("select status events: %w", err)}
	}
	defer rows.Close()

	var events []ingest.StatusEvent
	for rows.Next() {
		event := ingest.StatusEvent{JobID: jobID}
		if err := rows.Scan(&event.Status, &event.Stage, &event.ErrorText, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, &ingest.PersistenceError{Backend: "postgres", Err: fmt.Errorf("iterate status events: %w", err)}
	}
	return events, nil
}

// RecordSnapshot inserts the snapshot summary row.
func (s *PostgresStore) RecordSnapshot(ctx context.Context, row ingest.SnapshotRow) error {
	query := `
		INSERT INTO snapshot_records
			(crawl_id, snapshot_id, platform, competitor, brand, category,
			 file_path, record_count, media_count, ingestion_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := s.pool.Exec(ctx, query,
		row.JobID,
		row.ExternalID,
		row.Platform,
		row.Context.Competitor,
		row.Context.Brand,
		row.Context.Category,
		row.StoragePath,
		row.RecordCount,
		row.MediaCount,
		row.IngestedAt,
	); err != nil {
		return &ingest.PersistenceError{Backend: "postgres", Err: fmt.Errorf("insert snapshot record: %w", err)}
	}
	return nil
}
