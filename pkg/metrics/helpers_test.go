package metrics

import (
	dto "github.com/prometheus/client_model/go"
)

// series returns the first sample of the named family carrying every label
// in want, or nil.
func series(mfs []*dto.MetricFamily, name string, want map[string]string) *dto.Metric {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric, want) {
				return metric
			}
		}
	}
	return nil
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	have := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		have[pair.GetName()] = pair.GetValue()
	}
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// counterWithLabels returns -1 when no matching series exists.
func counterWithLabels(mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	if metric := series(mfs, name, labels); metric != nil {
		return metric.GetCounter().GetValue()
	}
	return -1
}
