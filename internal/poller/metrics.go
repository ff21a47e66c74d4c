package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pollAttempts counts individual provider status checks made by the pool.
	pollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_poll_attempts_total",
		Help: "The total number of background status checks performed.",
	})
	// pollCompleted counts jobs the pool shepherded to completion.
	pollCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_poll_completed_total",
		Help: "The total number of background jobs that completed.",
	})
	// pollFailed counts jobs that ended in failure under the pool's watch.
	pollFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_poll_failed_total",
		Help: "The total number of background jobs that failed.",
	})
	// queueRejects counts Watch calls refused because the queue was full.
	queueRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_poll_queue_rejects_total",
		Help: "The total number of jobs refused because the poll queue was full.",
	})
	// queueDepth tracks the current poll queue backlog.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_poll_queue_depth",
		Help: "The current number of jobs waiting in the poll queue.",
	})
)
