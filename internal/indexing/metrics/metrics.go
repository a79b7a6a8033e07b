package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks observer runs by result (success, failure, skipped)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_runs_total",
			Help: "Total number of observer runs",
		},
		[]string{"result"},
	)

	// RunDuration tracks how long a run takes end to end
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "observer_run_duration_seconds",
			Help:    "Observer run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// LastSuccessTimestamp is the unix time of the last committed run
	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "observer_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
	)

	// CheckpointHeight tracks the committed last checked height
	CheckpointHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "observer_checkpoint_height",
			Help: "Last checked block height committed by the observer",
		},
	)

	// ChainHeadHeight tracks the latest block height reported by the node
	ChainHeadHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "observer_chain_head_height",
			Help: "Latest block height of the chain",
		},
	)

	// WindowBlocks tracks the size of the last scanned window
	WindowBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "observer_window_blocks",
			Help: "Number of heights in the last scanned window",
		},
	)

	// EventsClassified tracks classified events per category
	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_events_classified_total",
			Help: "Total number of classified chain events",
		},
		[]string{"category"},
	)

	// EventsSkipped tracks transactions skipped during correlation
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_events_skipped_total",
			Help: "Total number of transactions skipped by the classifier",
		},
		[]string{"category", "reason"},
	)

	// DispatchTotal tracks backend trigger calls
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_dispatch_total",
			Help: "Total number of update dispatches",
		},
		[]string{"module", "kind", "result"},
	)

	// PurchaseUpdates tracks purchase transactions pushed to the backend
	PurchaseUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_purchase_updates_total",
			Help: "Total number of purchase transaction updates",
		},
		[]string{"status"},
	)

	// AlertsSent tracks operator alerts per channel
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_alerts_sent_total",
			Help: "Total number of operator alerts sent",
		},
		[]string{"channel", "class"},
	)

	// AlertsSuppressed tracks failures that fell inside the alert cooldown
	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by cooldown",
		},
		[]string{"class"},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "observer_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// BackendRequests tracks backend API calls by endpoint and status code
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_backend_requests_total",
			Help: "Total number of backend API requests",
		},
		[]string{"endpoint", "code"},
	)

	// DBConnectionPoolUsage tracks the share of open connections in percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "observer_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool size",
		},
	)
)
