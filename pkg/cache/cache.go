package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/angelmondragon/tillstock-backend/pkg/redis"
)

// Store is the subset of the redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(parts ...string) string
}

// Cache is a named, TTL-bounded read-through cache. Each owner constructs its
// own instance; entries expire in the backing store after ttl.
type Cache[T any] struct {
	store Store
	name  string
	ttl   time.Duration
	logg  *logger.Logger
}

// New builds a cache namespace. A non-positive ttl disables caching and every
// read goes to the loader.
func New[T any](store Store, name string, ttl time.Duration) (*Cache[T], error) {
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	return &Cache[T]{store: store, name: name, ttl: ttl}, nil
}

// WithLogger reports store failures that GetOrLoad absorbs.
func (c *Cache[T]) WithLogger(logg *logger.Logger) *Cache[T] {
	c.logg = logg
	return c
}

// TTL reports the configured entry lifetime.
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

func (c *Cache[T]) enabled() bool {
	return c != nil && c.store != nil && c.ttl > 0
}

func (c *Cache[T]) key(id string) string {
	return c.store.CacheKey(c.name, id)
}

// Get returns the cached value for id. The bool is false on a miss.
func (c *Cache[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if !c.enabled() {
		return zero, false, nil
	}
	raw, err := c.store.Get(ctx, c.key(id))
	if err != nil {
		if redis.IsNil(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("cache get %s: %w", c.name, err)
	}
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return zero, false, fmt.Errorf("cache decode %s: %w", c.name, err)
	}
	return value, true, nil
}

// Set stores value for id with the cache ttl.
func (c *Cache[T]) Set(ctx context.Context, id string, value T) error {
	if !c.enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", c.name, err)
	}
	if err := c.store.Set(ctx, c.key(id), string(payload), c.ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", c.name, err)
	}
	return nil
}

// Invalidate evicts id ahead of its ttl.
func (c *Cache[T]) Invalidate(ctx context.Context, id string) error {
	if !c.enabled() {
		return nil
	}
	if err := c.store.Del(ctx, c.key(id)); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", c.name, err)
	}
	return nil
}

// GetOrLoad serves id from the cache, falling back to load on a miss. Cache
// read and write failures degrade to a direct load; load errors are returned
// as-is and never cached.
func (c *Cache[T]) GetOrLoad(ctx context.Context, id string, load func(ctx context.Context) (T, error)) (T, error) {
	value, ok, err := c.Get(ctx, id)
	if err != nil {
		c.logg.WarnErr(ctx, "cache read failed; loading from source", err)
	} else if ok {
		return value, nil
	}
	value, err = load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(ctx, id, value); err != nil {
		c.logg.WarnErr(ctx, "cache write failed", err)
	}
	return value, nil
}
