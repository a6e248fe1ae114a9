package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all gaiacurves metrics
const namespace = "gaiacurves"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Identifier resolution metrics

// ResolveRequestsTotal counts name lookups by result
var ResolveRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolve_requests_total",
		Help:      "Total number of star name resolutions",
	},
	[]string{"status"}, // status: resolved|unresolved|error
)

// ResolveLatency tracks cross-identifier query latency
var ResolveLatency = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolve_duration_seconds",
		Help:      "Duration of cross-identifier queries in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

// Retrieval metrics

// RetrievalRequestsTotal counts light-curve retrievals by release and result
var RetrievalRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_requests_total",
		Help:      "Total number of light-curve retrievals",
	},
	[]string{"release", "status"}, // release: DR2|DR1, status: found|empty|error
)

// RetrievalLatency tracks retrieval duration per release
var RetrievalLatency = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_duration_seconds",
		Help:      "Duration of light-curve retrievals in seconds",
		// Async jobs routinely take tens of seconds
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	},
	[]string{"release"},
)

// RetrievalBytes tracks the size of persisted light-curve files
var RetrievalBytes = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_bytes",
		Help:      "Size of persisted light-curve files in bytes",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	},
	[]string{"release"},
)

// TAPJobsTotal counts async jobs by terminal state
var TAPJobsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tap_jobs_total",
		Help:      "Total number of async TAP jobs by terminal state",
	},
	[]string{"state"}, // state: completed|failed|timed_out|cancelled
)

// TAPJobPolls tracks how many phase checks a job needed
var TAPJobPolls = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tap_job_polls",
		Help:      "Number of phase polls per async TAP job",
		Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100, 300},
	},
)

// Batch metrics

// BatchOutcomesTotal counts per-star batch outcomes by the release that served them
var BatchOutcomesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_outcomes_total",
		Help:      "Total number of per-star batch outcomes",
	},
	[]string{"source"}, // source: DR2|DR1|N/A
)

// BatchDuration tracks whole-batch duration
var BatchDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Duration of batch fetches in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
	},
)

// Batch queue metrics

// BatchJobsQueued counts batches handed to the background queue
var BatchJobsQueued = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_jobs_queued_total",
		Help:      "Total number of batches queued for background workers",
	},
)

// BatchJobsInFlight tracks queued batches currently being worked
var BatchJobsInFlight = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "batch_jobs_in_flight",
		Help:      "Current number of queued batches being worked",
	},
)

// BatchJobsCompleted counts worked batches by result
var BatchJobsCompleted = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_jobs_completed_total",
		Help:      "Total number of queued batches worked to the end",
	},
	[]string{"result"}, // result: success|error
)

var initOnce sync.Once

// Init registers runtime collectors and sets version information. Only the
// first call registers collectors.
func Init(version, commit, buildDate string) {
	initOnce.Do(func() {
		// Register default Go metrics (memory, goroutines, GC, etc.)
		Registry.MustRegister(collectors.NewGoCollector())

		// Register process metrics (CPU, memory, file descriptors)
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// WriteTextfile writes the current registry contents in the Prometheus text
// format, for node_exporter's textfile collector after a CLI run.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
