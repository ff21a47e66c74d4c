package warehouse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fallbackWrites counts rows diverted to the secondary store while the
// primary warehouse was unavailable.
var fallbackWrites = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ingest_warehouse_fallback_writes_total",
	Help: "The total number of warehouse writes diverted to the fallback store.",
})
