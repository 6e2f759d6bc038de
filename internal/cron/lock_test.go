package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{data: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) ExtendIfOwner(_ context.Context, key, owner string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key] == owner, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != owner {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(name string) string { return "tillstock:lock:" + name }

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron", time.Minute)

	ctx := context.Background()
	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second holder must not acquire a held lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock free after release")
	}
}

func TestRedisLockLeavesForeignLeaseAlone(t *testing.T) {
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "cron", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// lease expired and another replica took it
	store.data["tillstock:lock:cron"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["tillstock:lock:cron"] != "someone-else" {
		t.Fatal("foreign lease was deleted")
	}
}

func TestRedisLockRefreshDetectsTakeover(t *testing.T) {
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "cron", time.Minute)
	ctx := context.Background()

	if err := lock.Refresh(ctx); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("refresh without a lease should report loss, got %v", err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if err := lock.Refresh(ctx); err != nil {
		t.Fatalf("owner refresh: %v", err)
	}

	store.data["tillstock:lock:cron"] = "someone-else"
	if err := lock.Refresh(ctx); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("expected lease lost, got %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after loss: %v", err)
	}
	if store.data["tillstock:lock:cron"] != "someone-else" {
		t.Fatal("foreign lease was deleted")
	}
}

func TestRedisLockRejectsDoubleAcquire(t *testing.T) {
	lock, _ := NewRedisLock(newMemoryLockStore(), "cron", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if _, err := lock.Acquire(ctx); err == nil {
		t.Fatal("expected error acquiring a lease already held")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(newMemoryLockStore(), "", time.Minute); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "cron", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
