package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
)

func TestSetNXOnlyFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "k", "first", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "second", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second SetNX to be rejected")
	}
	value, err := client.Get(ctx, "k")
	if err != nil || value != "first" {
		t.Fatalf("expected stored value first, got %q err=%v", value, err)
	}

	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "k"); !IsNil(err) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("checkout", "abc"); got != "ts:idempotency:checkout:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.CacheKey("account_status", "acct_1"); got != "ts:cache:account_status:acct_1" {
		t.Fatalf("unexpected cache key %s", got)
	}
	if got := client.CacheKey("checkout_session", "", "cs_1"); got != "ts:cache:checkout_session:cs_1" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := client.LockKey("cron"); got != "ts:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

func TestReleaseIfOwnerWithoutScripting(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("cron-worker:prod")

	if _, err := client.SetNX(ctx, key, "owner-a", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}
	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	if err != nil || released {
		t.Fatalf("foreign owner must not release, released=%v err=%v", released, err)
	}
	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	if err != nil || !released {
		t.Fatalf("owner should release, released=%v err=%v", released, err)
	}
	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	if err != nil || released {
		t.Fatalf("missing key should be a no-op, released=%v err=%v", released, err)
	}
}

func TestExtendIfOwnerWithoutScripting(t *testing.T) {
	ctx := context.Background()
	store := newMockCmdable()
	client := &Client{store: store}
	key := client.LockKey("cron-worker:prod")

	if ok, _ := client.ExtendIfOwner(ctx, key, "owner-a", time.Minute); ok {
		t.Fatal("missing lease must not be extended")
	}
	if _, err := client.SetNX(ctx, key, "owner-a", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if ok, _ := client.ExtendIfOwner(ctx, key, "owner-b", time.Minute); ok {
		t.Fatal("foreign owner must not extend")
	}
	ok, err := client.ExtendIfOwner(ctx, key, "owner-a", 2*time.Minute)
	if err != nil || !ok {
		t.Fatalf("owner should extend, ok=%v err=%v", ok, err)
	}
	if store.data[key] != "owner-a" {
		t.Fatalf("extension must keep the owner, got %q", store.data[key])
	}
	if _, err := client.ExtendIfOwner(ctx, key, "owner-a", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestOptionsFromConfigKeepsURLParams(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:      "redis://localhost:6379/3?pool_size=42",
		DB:       1,
		PoolSize: 10,
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 42 {
		t.Fatalf("url params should win, got db=%d pool=%d", opts.DB, opts.PoolSize)
	}
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil raw client should be a no-op, got %v", err)
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
