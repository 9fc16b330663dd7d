package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "glycopilot"

var (
	// ReadingsIngested counts committed readings by source
	ReadingsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readings_ingested_total",
		Help:      "Committed glucose readings by source",
	}, []string{"source"})

	// AlertEvents counts materialized alert events by rule code
	AlertEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alert_events_total",
		Help:      "Alert events created by rule",
	}, []string{"rule"})

	// PushDeliveries counts push attempts by outcome (sent, failed, no_tokens)
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_deliveries_total",
		Help:      "Push delivery attempts by outcome",
	}, []string{"outcome"})

	// PushLatency tracks push transport latency
	PushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "push_duration_seconds",
		Help:      "Push transport call duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
	})

	// RealtimeEnvelopes counts envelopes handed to the hub by type
	RealtimeEnvelopes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_envelopes_total",
		Help:      "Realtime envelopes published by type",
	}, []string{"type"})

	// RealtimeDropped counts subscribers dropped for a full send buffer
	RealtimeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_dropped_clients_total",
		Help:      "Realtime subscribers disconnected because their buffer was full",
	})

	// RealtimeConnections is the number of live subscribers on this instance
	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connections",
		Help:      "Open realtime connections on this instance",
	})

	// AdminKeyAccepted counts bearer tokens accepted under the admin signing key
	AdminKeyAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_key_tokens_accepted_total",
		Help:      "Bearer tokens validated with the admin signing key",
	})

	// CachePruned counts cache rows removed by lazy pruning and the sweeper
	CachePruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_rows_pruned_total",
		Help:      "Rolling cache rows pruned",
	}, []string{"trigger"})

	// SinkErrors counts failures of the optional reading sinks
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_errors_total",
		Help:      "Reading sink failures by sink",
	}, []string{"sink"})
)
