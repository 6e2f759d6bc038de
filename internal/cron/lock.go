package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLeaseLost means another replica now holds the cycle lease.
var ErrLeaseLost = errors.New("cron lease lost")

// Lock keeps a cycle to a single worker across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExtendIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(name string) string
}

// RedisLock is an owner-tagged lease. The ttl bounds how long a crashed
// holder can block other replicas; long cycles call Refresh to keep it.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	owner string
}

func NewRedisLock(store leaseStore, name string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lease store is required")
	case name == "":
		return nil, errors.New("lock name is required")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLock{store: store, key: store.LockKey(name), ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" {
		return false, fmt.Errorf("lease %s already held by this worker", l.key)
	}
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.owner = token
	}
	return won, nil
}

// Refresh restarts the lease ttl. It returns ErrLeaseLost once the lease has
// expired or changed hands, after which this holder owns nothing.
func (l *RedisLock) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" {
		return ErrLeaseLost
	}
	kept, err := l.store.ExtendIfOwner(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if !kept {
		l.owner = ""
		return ErrLeaseLost
	}
	return nil
}

// Release drops the lease only while this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.owner
	l.owner = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
