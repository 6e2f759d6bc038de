package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks scheduled job runs, cycles skipped because another
// replica held the lease, and cycles cut short when the lease was lost.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	skipped  prometheus.Counter
	lost     prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job executions by outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cron_cycles_skipped_total",
		Help: "Scheduled cycles skipped because the lease was held elsewhere.",
	})
	lost := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cron_leases_lost_total",
		Help: "Cycles abandoned because the lease expired mid-run.",
	})
	reg.MustRegister(runs, duration, skipped, lost)
	return &CronJobMetrics{runs: runs, duration: duration, skipped: skipped, lost: lost}
}

// Observe records one job run. outcome is ok or failed.
func (c *CronJobMetrics) Observe(job, outcome string, d time.Duration) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.runs.WithLabelValues(job, normalizeLabel(outcome)).Inc()
	c.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (c *CronJobMetrics) IncSkipped() {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.Inc()
}

func (c *CronJobMetrics) IncLeaseLost() {
	if c == nil || c.lost == nil {
		return
	}
	c.lost.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
