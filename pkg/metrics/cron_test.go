package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.Observe("stripe-account-sync", "ok", 250*time.Millisecond)
	m.Observe("stripe-account-sync", "failed", time.Second)
	m.Observe("outbox-retention", "ok", 10*time.Millisecond)
	m.IncSkipped()
	m.IncSkipped()
	m.IncLeaseLost()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"cron_job_runs_total", map[string]string{"job": "stripe-account-sync", "outcome": "failed"}, 1},
		{"cron_job_runs_total", map[string]string{"job": "stripe-account-sync", "outcome": "ok"}, 1},
		{"cron_job_runs_total", map[string]string{"job": "outbox-retention", "outcome": "ok"}, 1},
		{"cron_cycles_skipped_total", nil, 2},
		{"cron_leases_lost_total", nil, 1},
	}
	for _, c := range checks {
		if got := counterWithLabels(mfs, c.name, c.labels); got != c.want {
			t.Fatalf("%s%v: expected %v, got %v", c.name, c.labels, c.want, got)
		}
	}

	hist := series(mfs, "cron_job_duration_seconds", map[string]string{"job": "stripe-account-sync"})
	if hist == nil {
		t.Fatal("missing duration histogram for stripe-account-sync")
	}
	if got := hist.GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 duration samples, got %d", got)
	}
	if got := hist.GetHistogram().GetSampleSum(); got < 1.25 {
		t.Fatalf("expected duration sum >= 1.25s, got %f", got)
	}
}

func TestCronJobMetricsUnknownLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg).Observe("", "", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got := counterWithLabels(mfs, "cron_job_runs_total", map[string]string{"job": "unknown", "outcome": "unknown"}); got != 1 {
		t.Fatalf("blank labels should normalize to unknown, got %v", got)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Observe("job", "ok", time.Second)
	m.IncSkipped()
	m.IncLeaseLost()
	NewCronJobMetrics(nil).IncLeaseLost()
}
