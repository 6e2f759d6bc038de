package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts inbound processor events.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

func (m *WebhookMetrics) Observe(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
