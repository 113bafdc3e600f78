// Package observability holds the Prometheus collectors shared by the
// engines and the HTTP layer. Collectors register with the default registry
// through promauto and are exposed by promhttp on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridepool"

var (
	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Committed ride status transitions"},
		[]string{"from", "to"},
	)
	TripTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "trip_transitions_total", Help: "Committed pool trip status transitions"},
		[]string{"from", "to"},
	)
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "settlements_total", Help: "Settlement attempts by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	SettledAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "settled_amount_minor_total", Help: "Minor currency units moved by settlements"},
		[]string{"kind"},
	)
	SeatClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "seat_claims_total", Help: "Seat claim attempts by outcome"},
		[]string{"outcome"},
	)
	EventPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "event_publish_failures_total", Help: "Events that could not be delivered"},
		[]string{"type"},
	)
	SearchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "search_cache_total", Help: "Trip search cache lookups by result"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)
