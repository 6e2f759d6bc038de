package metrics

import "github.com/prometheus/client_golang/prometheus"

// StockMetrics counts ledger mutations by reason and outcome.
type StockMetrics struct {
	mutations *prometheus.CounterVec
	lowStock  *prometheus.CounterVec
}

func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_mutations_total",
		Help: "Stock ledger mutations by reason and outcome.",
	}, []string{"reason", "outcome"})
	lowStock := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_low_threshold_crossings_total",
		Help: "Mutations that left a product at or below its low-stock threshold.",
	}, []string{"reason"})
	reg.MustRegister(mutations, lowStock)
	return &StockMetrics{mutations: mutations, lowStock: lowStock}
}

// Observe records one mutation attempt. outcome is applied, duplicate,
// insufficient, not_found or error.
func (m *StockMetrics) Observe(reason, outcome string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(reason), normalizeLabel(outcome)).Inc()
}

func (m *StockMetrics) IncLowStock(reason string) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.WithLabelValues(normalizeLabel(reason)).Inc()
}
