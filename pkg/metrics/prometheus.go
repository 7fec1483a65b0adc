package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutboxMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commutealarm_outbox_messages_total",
			Help: "Outbox dispatch attempts by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	OutboxRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commutealarm_outbox_recorded_total",
			Help: "Outbox messages recorded by event type",
		},
		[]string{"event_type"},
	)

	OutboxBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commutealarm_outbox_batch_duration_seconds",
			Help:    "Duration of one dispatch batch",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"batch"},
	)

	OutboxBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commutealarm_outbox_batch_size",
			Help:    "Number of messages selected per dispatch batch",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"batch"},
	)

	WakeSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commutealarm_wake_signals_total",
			Help: "Dispatcher wake signals by result",
		},
		[]string{"result"},
	)

	RouteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commutealarm_route_requests_total",
			Help: "Route estimator calls by result",
		},
		[]string{"result"},
	)

	RouteRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commutealarm_route_request_duration_seconds",
			Help:    "Route estimator HTTP latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulesMaterializedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commutealarm_schedules_materialized_total",
			Help: "Quick schedules handled by result",
		},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commutealarm_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)
)
