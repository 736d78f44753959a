// Package metrics provides Prometheus instrumentation for exchange clients.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeExchange  = "exchange_error"
	OutcomeNetwork   = "network_error"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

var (
	// RequestsTotal counts dispatched requests by adapter, endpoint and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_requests_total",
		Help: "Total exchange API requests",
	}, []string{"adapter", "endpoint", "outcome"})

	// RequestDuration tracks round-trip time of dispatched requests.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_request_duration_seconds",
		Help:    "Exchange API request duration in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"adapter", "endpoint"})

	// ErrorsTotal counts classified errors by kind.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_errors_total",
		Help: "Exchange errors by canonical kind",
	}, []string{"adapter", "kind"})

	// RateGateWait tracks time spent waiting for the rate gate.
	RateGateWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_rate_gate_wait_seconds",
		Help:    "Time spent waiting for call spacing",
		Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"adapter"})

	// LaneWait tracks time private calls spend queued behind the same credentials.
	LaneWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_nonce_lane_wait_seconds",
		Help:    "Time spent waiting for the per-credential dispatch lane",
		Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"adapter"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveRequest(adapter, endpoint, outcome string, d time.Duration) {
	RequestsTotal.WithLabelValues(adapter, endpoint, outcome).Inc()
	if outcome != OutcomeRejected && outcome != OutcomeCancelled {
		RequestDuration.WithLabelValues(adapter, endpoint).Observe(d.Seconds())
	}
}

func ObserveError(adapter, kind string) {
	ErrorsTotal.WithLabelValues(adapter, kind).Inc()
}
