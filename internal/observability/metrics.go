package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "evvalet", Name: "status_transitions_total", Help: "Committed status transitions by entity and target status"},
		[]string{"entity", "status"},
	)
	TransitionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "evvalet", Name: "transition_conflicts_total", Help: "Transitions lost to a concurrent writer"},
		[]string{"entity"},
	)
	PositionReports = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "evvalet", Name: "position_reports_total", Help: "Driver position reports by outcome"},
		[]string{"outcome"},
	)
	BroadcastFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "evvalet", Name: "broadcast_failures_total", Help: "Events a sink failed to deliver"},
		[]string{"sink"},
	)
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "evvalet", Name: "websocket_clients", Help: "Connected websocket clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "evvalet", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evvalet",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
