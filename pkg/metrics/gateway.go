package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks payment processor calls.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(requests, duration)
	return &GatewayMetrics{requests: requests, duration: duration}
}

func (m *GatewayMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	op := normalizeLabel(operation)
	m.requests.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
