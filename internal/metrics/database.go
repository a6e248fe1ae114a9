package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run ledger database metrics
var (
	// LedgerConnections reports the ledger pool by connection state
	LedgerConnections = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_connections",
			Help:      "Run ledger pool connections by state",
		},
		[]string{"state"}, // state: total|acquired|idle|max
	)

	// LedgerQueryDuration records ledger query latency
	LedgerQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_query_duration_seconds",
			Help:      "Run ledger query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// LedgerErrors counts ledger errors by operation and type
	LedgerErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_errors_total",
			Help:      "Total number of run ledger errors",
		},
		[]string{"operation", "error_type"},
	)
)

// PoolCollector samples ledger pool statistics on an interval.
type PoolCollector struct {
	pool *pgxpool.Pool
}

// NewPoolCollector creates a collector for pool. A nil pool is allowed and
// collects nothing.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{pool: pool}
}

// Run samples immediately and then every interval until ctx ends.
func (c *PoolCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-ctx.Done():
			return
		}
	}
}

func (c *PoolCollector) collect() {
	if c.pool == nil {
		return
	}
	stat := c.pool.Stat()
	LedgerConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
	LedgerConnections.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
	LedgerConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	LedgerConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
}

// RecordQuery records metrics for a ledger query:
//
//	start := time.Now()
//	err := ...
//	metrics.RecordQuery("insert_run", start, err)
func RecordQuery(operation string, start time.Time, err error) {
	LedgerQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		errorType := "query_error"
		switch {
		case errors.Is(err, context.Canceled):
			errorType = "canceled"
		case errors.Is(err, context.DeadlineExceeded):
			errorType = "timeout"
		}
		LedgerErrors.WithLabelValues(operation, errorType).Inc()
	}
}
