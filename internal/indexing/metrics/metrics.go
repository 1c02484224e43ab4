package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks processor invocations by outcome (ok, skipped, consumer_error, store_error)
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwatcher_cycles_total",
			Help: "Total number of processor cycle invocations",
		},
		[]string{"outcome"},
	)

	// CycleDuration tracks wall time of cycles that actually ran
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logwatcher_cycle_duration_seconds",
			Help:    "Duration of processor cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FetchErrorsTotal tracks backend fetch failures swallowed as empty windows
	FetchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwatcher_fetch_errors_total",
			Help: "Total number of failed log backend queries",
		},
	)

	// FetchLatency tracks backend query latency
	FetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logwatcher_fetch_latency_seconds",
			Help:    "Log backend query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LogsDelivered tracks records handed to the consumer
	LogsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwatcher_logs_delivered_total",
			Help: "Total number of transaction logs delivered to the consumer",
		},
	)

	// WindowsClamped counts windows shortened by the look-behind cap
	WindowsClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwatcher_windows_clamped_total",
			Help: "Total number of windows clamped by the maximum look-behind",
		},
	)

	// CursorTimestamp tracks the last committed cursor
	CursorTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logwatcher_cursor_timestamp_seconds",
			Help: "Last processed unix timestamp",
		},
	)

	// WindowWidth tracks the width of the last queried window
	WindowWidth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logwatcher_window_width_seconds",
			Help: "Width of the last queried window in seconds",
		},
	)

	// DBConnectionPoolUsage tracks cursor database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logwatcher_db_connection_pool_usage_percent",
			Help: "Cursor database connection pool usage percentage",
		},
	)
)

// Cycle outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeSkipped       = "skipped"
	OutcomeConsumerError = "consumer_error"
	OutcomeStoreError    = "store_error"
	OutcomeLockError     = "lock_error"
)
