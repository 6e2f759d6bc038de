package cron

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

type fakeOutboxStore struct {
	cutoffs   []time.Time
	parked    int64
	deleteErr error
	countErr  error
	counted   int
}

func (f *fakeOutboxStore) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 3, nil
}

func (f *fakeOutboxStore) CountParked(context.Context, int) (int64, error) {
	f.counted++
	return f.parked, f.countErr
}

func retentionJob(t *testing.T, store *fakeOutboxStore, days, maxAttempts int, out *bytes.Buffer) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: out}),
		Repository:    store,
		RetentionDays: days,
		MaxAttempts:   maxAttempts,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	j := job.(*outboxRetentionJob)
	j.now = func() time.Time { return time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC) }
	return j
}

func TestOutboxRetentionCutoff(t *testing.T) {
	cases := map[string]struct {
		days int
		want time.Time
	}{
		"default": {0, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)},
		"weekly":  {7, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeOutboxStore{}
			if err := retentionJob(t, store, tc.days, 0, &bytes.Buffer{}).Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(store.cutoffs) != 1 || !store.cutoffs[0].Equal(tc.want) {
				t.Fatalf("expected cutoff %s, got %v", tc.want, store.cutoffs)
			}
			if store.counted != 0 {
				t.Fatal("parked rows are not counted without a ceiling")
			}
		})
	}
}

func TestOutboxRetentionWarnsAboutParkedRows(t *testing.T) {
	var out bytes.Buffer
	store := &fakeOutboxStore{parked: 2}
	if err := retentionJob(t, store, 0, 10, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "parked rows") || !strings.Contains(out.String(), `"rows_parked":2`) {
		t.Fatalf("expected parked warning, got %s", out.String())
	}
}

func TestOutboxRetentionPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	if err := retentionJob(t, &fakeOutboxStore{deleteErr: boom}, 0, 10, &bytes.Buffer{}).Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected delete error, got %v", err)
	}
	if err := retentionJob(t, &fakeOutboxStore{countErr: boom}, 0, 10, &bytes.Buffer{}).Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected count error, got %v", err)
	}
}
