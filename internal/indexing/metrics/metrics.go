package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RangesScanned tracks block ranges fetched per job
	RangesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_ranges_scanned_total",
			Help: "Total number of block ranges scanned",
		},
		[]string{"job"},
	)

	// EventsTotal tracks request events by decode result (decoded, dropped)
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_events_total",
			Help: "Total number of OracleRequest logs seen",
		},
		[]string{"job", "result"},
	)

	// OutcomesTotal tracks fulfillment decisions per job
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_outcomes_total",
			Help: "Total number of fulfillment outcomes",
		},
		[]string{"job", "outcome"},
	)

	// ProgressRatio tracks the share of the configured range already scanned
	ProgressRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reconciler_progress_ratio",
			Help: "Fraction of the configured block range processed",
		},
		[]string{"job"},
	)

	// CheckpointBlock tracks the last persisted checkpoint
	CheckpointBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reconciler_checkpoint_block",
			Help: "Last block boundary written to the checkpoint",
		},
		[]string{"job"},
	)

	// PersistenceErrors tracks swallowed write failures per store
	PersistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_persistence_errors_total",
			Help: "Total number of checkpoint or attempt log write failures",
		},
		[]string{"store"},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconciler_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// DBConnectionPoolUsage tracks the percentage of open Postgres connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_db_connection_pool_usage_percent",
			Help: "Percentage of the Postgres connection pool in use",
		},
	)
)
