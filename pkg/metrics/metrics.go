package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Business metrics
	ActiveDeliveriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_deliveries_total",
			Help: "Current number of deliveries in a non-terminal status",
		},
		[]string{"service"},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_status_transitions_total",
			Help: "Total number of applied delivery status transitions",
		},
		[]string{"service", "to_status"},
	)

	InvalidTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_invalid_transitions_total",
			Help: "Total number of rejected delivery status transitions",
		},
		[]string{"service"},
	)

	PositionSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "position_samples_total",
			Help: "Total number of courier position samples accepted",
		},
		[]string{"service"},
	)

	TrackingEventsFannedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_fanned_out_total",
			Help: "Total number of tracking events pushed to observer connections",
		},
		[]string{"service", "event_type"},
	)

	TrackingEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_dropped_total",
			Help: "Events dropped because an observer outbound queue overflowed",
		},
		[]string{"service"},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"service"},
	)

	ReconciliationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Total number of reconciliation checks",
		},
		[]string{"service", "outcome"}, // consistent | released | flagged | unknown_pair | error
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"service", "operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)
)

// RecordHTTPMetrics records the standard per-request counters and histogram.
func RecordHTTPMetrics(service, method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	HttpRequestsTotal.WithLabelValues(service, method, path, code).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, code).Observe(duration.Seconds())
}

// RecordDatabaseQuery records one repo call.
func RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}
