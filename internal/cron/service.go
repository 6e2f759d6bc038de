package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute
)

type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the registered jobs on a fixed cadence. Only the replica
// holding the lease runs a cycle, and the lease is renewed after each job.
type Service struct {
	logg       *logger.Logger
	jobs       *Registry
	lease      Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	jobs := params.Registry
	if jobs == nil {
		jobs, _ = NewRegistry()
	}
	s := &Service{
		logg:       params.Logger,
		jobs:       jobs,
		lease:      params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job once if this replica wins the lease. A failing job
// does not stop the ones after it; losing the lease does.
func (s *Service) RunOnce(ctx context.Context) error {
	won, err := s.lease.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !won {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		s.metrics.IncSkipped()
		return nil
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	start := time.Now()
	s.logg.Info(ctx, "scheduled run starting")
	failed := 0
	for i, job := range s.jobs.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := s.lease.Refresh(ctx); err != nil {
				return s.abandon(ctx, job, err)
			}
		}
		if !s.runJob(ctx, job) {
			failed++
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_failed": failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}), "scheduled run complete")
	return nil
}

func (s *Service) abandon(ctx context.Context, next Job, err error) error {
	ctx = s.logg.WithField(ctx, "next_job", next.Name())
	if errors.Is(err, ErrLeaseLost) {
		s.metrics.IncLeaseLost()
		s.logg.Warn(ctx, "cron lease lost mid-cycle; remaining jobs deferred to the next holder")
		return nil
	}
	return fmt.Errorf("lock refresh: %w", err)
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	err := safeRun(jobCtx, job)
	elapsed := time.Since(start)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.Observe(job.Name(), "failed", elapsed)
		return false
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.Observe(job.Name(), "ok", elapsed)
	return true
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	return job.Run(ctx)
}
