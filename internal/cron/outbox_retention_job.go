package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

const (
	defaultRetentionDays = 30
	day                  = 24 * time.Hour
)

type outboxStore interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountParked(ctx context.Context, maxAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxStore
	// RetentionDays bounds how long published rows are kept.
	RetentionDays int
	// MaxAttempts is the publisher ceiling; rows at it are reported.
	MaxAttempts int
}

// outboxRetentionJob deletes published rows past the retention window and
// reports parked ones. Unpublished rows are never deleted.
type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxStore
	keep        time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("outbox retention: logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox retention: repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		keep:        time.Duration(days) * day,
		maxAttempts: params.MaxAttempts,
		now:         time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff.Format(time.RFC3339),
		"rows_deleted": deleted,
	})

	if j.maxAttempts > 0 {
		parked, err := j.repo.CountParked(ctx, j.maxAttempts)
		if err != nil {
			return err
		}
		if parked > 0 {
			j.logg.Warn(j.logg.WithField(ctx, "rows_parked", parked), "outbox has parked rows awaiting inspection")
		}
	}
	j.logg.Info(ctx, "outbox retention complete")
	return nil
}
