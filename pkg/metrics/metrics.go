package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Table/row metrics
	RowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stdb_table_rows_total",
			Help: "Current row count by table",
		},
		[]string{"table"},
	)

	// Commit log metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stdb_commits_total",
			Help: "Total number of transactions committed",
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stdb_commit_duration_seconds",
			Help:    "Time taken to commit a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitLogSegmentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stdb_commit_log_segments_total",
			Help: "Number of commit log segment files on disk",
		},
	)

	CommitLogNextTxOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stdb_commit_log_next_tx_offset",
			Help: "Next transaction offset the commit log will assign",
		},
	)

	// Reducer call metrics
	ReducerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdb_reducer_calls_total",
			Help: "Total number of reducer calls by reducer and outcome",
		},
		[]string{"reducer", "outcome"},
	)

	ReducerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stdb_reducer_call_duration_seconds",
			Help:    "Reducer call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"reducer"},
	)

	ReducerBudgetExceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdb_reducer_budget_exceeded_total",
			Help: "Total number of reducer calls aborted for exceeding their budget",
		},
		[]string{"reducer"},
	)

	// Sequence allocator metrics
	SequenceAllocatedWatermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stdb_sequence_allocated_watermark",
			Help: "Current persisted allocation watermark by sequence",
		},
		[]string{"sequence"},
	)

	// Subscription metrics
	SubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stdb_subscribers_total",
			Help: "Current number of subscribed TransactionUpdate listeners",
		},
	)

	TransactionUpdatesPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stdb_transaction_updates_published_total",
			Help: "Total number of TransactionUpdates published to subscribers",
		},
	)

	// Migration metrics
	MigrationsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdb_migrations_applied_total",
			Help: "Total number of migration plans applied by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(RowsTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(CommitLogSegmentsTotal)
	prometheus.MustRegister(CommitLogNextTxOffset)
	prometheus.MustRegister(ReducerCallsTotal)
	prometheus.MustRegister(ReducerCallDuration)
	prometheus.MustRegister(ReducerBudgetExceededTotal)
	prometheus.MustRegister(SequenceAllocatedWatermark)
	prometheus.MustRegister(SubscribersTotal)
	prometheus.MustRegister(TransactionUpdatesPublishedTotal)
	prometheus.MustRegister(MigrationsAppliedTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
