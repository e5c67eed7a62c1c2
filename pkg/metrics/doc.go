/*
Package metrics provides Prometheus metrics collection and exposition for
the storage engine.

The metrics package defines and registers every metric using the
Prometheus client library, giving observability into table sizes, commit
log growth, reducer call latency and outcomes, sequence allocation, and
subscription fan-out. Metrics are exposed via an HTTP endpoint for
scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (row count)          │          │
	│  │  Counter: Monotonic increases (commits)     │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Tables: row counts                         │          │
	│  │  Commit log: segments, next tx offset       │          │
	│  │  Reducers: call count/duration/outcome      │          │
	│  │  Sequences: allocation watermarks            │          │
	│  │  Subscription: subscriber count, updates    │          │
	│  │  Migration: applied plan outcomes           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Thread-safe for concurrent updates

Collector:
  - Periodically samples a Database's gauges (row counts, sequence
    watermarks) plus a commit log's segment/offset counters and a
    subscription Broker's subscriber count
  - Counter and histogram metrics (commits, reducer calls) are updated
    inline by their callers, not by the Collector, since those are
    per-event rather than point-in-time samples

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

stdb_table_rows_total{table}:
  - Type: Gauge
  - Description: Current row count by table

stdb_commits_total:
  - Type: Counter
  - Description: Total number of transactions committed

stdb_commit_duration_seconds:
  - Type: Histogram
  - Description: Time taken to commit a transaction

stdb_commit_log_segments_total:
  - Type: Gauge
  - Description: Number of commit log segment files on disk

stdb_commit_log_next_tx_offset:
  - Type: Gauge
  - Description: Next transaction offset the commit log will assign

stdb_reducer_calls_total{reducer, outcome}:
  - Type: Counter
  - Description: Total reducer calls by reducer name and outcome
    (ok, ok_empty, err, internal_error)

stdb_reducer_call_duration_seconds{reducer}:
  - Type: Histogram
  - Description: Reducer call duration in seconds

stdb_reducer_budget_exceeded_total{reducer}:
  - Type: Counter
  - Description: Reducer calls aborted for exceeding their budget

stdb_sequence_allocated_watermark{sequence}:
  - Type: Gauge
  - Description: Current persisted allocation watermark by sequence ID

stdb_subscribers_total:
  - Type: Gauge
  - Description: Current number of subscribed TransactionUpdate listeners

stdb_transaction_updates_published_total:
  - Type: Counter
  - Description: Total TransactionUpdates published to subscribers

stdb_migrations_applied_total{outcome}:
  - Type: Counter
  - Description: Migration plans applied, by outcome (ok, error)

# Usage

	import "github.com/cuemby/spacetimedb-core/pkg/metrics"

	metrics.CommitsTotal.Inc()

	timer := metrics.NewTimer()
	// ... commit a transaction ...
	timer.ObserveDuration(metrics.CommitDuration)

	metrics.ReducerCallsTotal.WithLabelValues("add_player", "ok").Inc()

Running a Collector:

	collector := metrics.NewCollector(db, tableNames, commitLog, broker)
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":9090", nil)

# Integration Points

  - pkg/engine: records reducer call counts/durations/outcomes and
    commit counts/durations
  - pkg/catalog: records migration outcomes
  - pkg/engine/subscription: reports subscriber count via Collector
  - Prometheus: scrapes the /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init()
  - MustRegister panics on duplicate registration

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels (table name,
    reducer name, sequence ID)
  - Avoid unbounded labels (row IDs, timestamps)

Timer Pattern:
  - Create timer at operation start
  - Call ObserveDuration/ObserveDurationVec when it finishes
*/
package metrics
