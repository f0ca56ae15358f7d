// Package meshobserve wires kindmesh's fork traffic and dispatch calls into
// Prometheus metrics and OpenTelemetry traces: promauto vector shapes and
// an OTLP/gRPC tracer setup, scoped to kindmesh's fork/call/transport
// concerns.
package meshobserve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forksOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindmesh_forks_opened_total",
			Help: "Total number of forks opened, by side",
		},
		[]string{"side"}, // active, passive
	)

	framesRoutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindmesh_frames_routed_total",
			Help: "Total number of frames routed to a fork, by outcome",
		},
		[]string{"outcome"}, // delivered, orphaned, dropped
	)

	constructDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kindmesh_construct_duration_seconds",
			Help:    "Time spent constructing a value from a fork, by Kind",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindmesh_calls_total",
			Help: "Total reflected-trait calls, by protocol/method/status",
		},
		[]string{"protocol", "method", "status"}, // status: ok, error
	)

	callDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kindmesh_call_duration_seconds",
			Help:    "Reflected-trait call round-trip duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"protocol", "method"},
	)

	transportRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindmesh_transport_requests_total",
			Help: "Total transport-level requests, by transport/status",
		},
		[]string{"transport", "status"},
	)
)

// RecordForkOpened records one fork allocation on side ("active" or
// "passive").
func RecordForkOpened(side string) {
	forksOpenedTotal.WithLabelValues(side).Inc()
}

// RecordFrameRouted records the routing outcome of one inbound frame.
func RecordFrameRouted(outcome string) {
	framesRoutedTotal.WithLabelValues(outcome).Inc()
}

// RecordConstruct records how long it took to construct a value of the
// named Kind from a fork.
func RecordConstruct(kindID string, durationSeconds float64) {
	constructDurationSeconds.WithLabelValues(kindID).Observe(durationSeconds)
}

// RecordCall records a completed reflected-trait call.
func RecordCall(protocol, method, status string, durationSeconds float64) {
	callsTotal.WithLabelValues(protocol, method, status).Inc()
	callDurationSeconds.WithLabelValues(protocol, method).Observe(durationSeconds)
}

// RecordTransportRequest records one unit of transport-level traffic (a
// gRPC stream message, a WebSocket frame, ...).
func RecordTransportRequest(transport, status string) {
	transportRequestsTotal.WithLabelValues(transport, status).Inc()
}
