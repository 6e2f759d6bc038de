package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "ts"
	idempotencyPrefix = "idempotency"
	cachePrefix       = "cache"
	lockPrefix        = "lock"
)

// Nil is returned by Get when the key does not exist.
var Nil = redis.Nil

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client serves the idempotency middleware, the gateway cache and the cron
// lease. Keys are namespaced under "ts:".
type Client struct {
	store cmdable
	raw   *redis.Client
}

// IdempotencyStore exposes minimal operations used by idempotency helpers.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Set(context.Context, string, any, time.Duration) error
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"redis_addr": opts.Addr,
			"redis_db":   opts.DB,
			"pool_size":  opts.PoolSize,
		}), "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	// explicit URL parameters win over the pool defaults from config
	setDefault(&opts.DB, cfg.DB)
	setDefault(&opts.PoolSize, cfg.PoolSize)
	setDefault(&opts.MinIdleConns, cfg.MinIdleConns)
	setDefault(&opts.DialTimeout, cfg.DialTimeout)
	setDefault(&opts.ReadTimeout, cfg.ReadTimeout)
	setDefault(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setDefault[T comparable](dst *T, fallback T) {
	var zero T
	if *dst == zero {
		*dst = fallback
	}
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseIfOwner deletes a lease key only when its value still equals owner,
// so a holder whose TTL lapsed cannot drop a lease another replica now owns.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	if c.raw != nil {
		n, err := releaseScript.Run(ctx, c.raw, []string{key}, owner).Int64()
		if err != nil {
			return false, fmt.Errorf("release %s: %w", key, err)
		}
		return n == 1, nil
	}
	// non-scripting stores (tests) fall back to a read-then-delete
	current, err := c.Get(ctx, key)
	if IsNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current != owner {
		return false, nil
	}
	return true, c.Del(ctx, key)
}

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ExtendIfOwner pushes a lease's expiry out to ttl from now. It reports false
// when the lease has lapsed or belongs to someone else.
func (c *Client) ExtendIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("lease ttl must be positive")
	}
	if c.raw != nil {
		n, err := extendScript.Run(ctx, c.raw, []string{key}, owner, ttl.Milliseconds()).Int64()
		if err != nil {
			return false, fmt.Errorf("extend %s: %w", key, err)
		}
		return n == 1, nil
	}
	current, err := c.Get(ctx, key)
	if IsNil(err) || (err == nil && current != owner) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, c.Set(ctx, key, owner, ttl)
}

// IdempotencyKey namespaces a client-supplied Idempotency-Key by route scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

// CacheKey namespaces read-through gateway cache entries.
func (c *Client) CacheKey(parts ...string) string {
	return buildKey(append([]string{cachePrefix}, parts...)...)
}

func (c *Client) LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// IsNil reports whether err is the redis "key missing" sentinel.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func buildKey(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
