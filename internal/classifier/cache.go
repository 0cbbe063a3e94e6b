package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
)

const cacheKeyPrefix = "dailyscore:classify:"

// Cache stores upstream classifications keyed by normalized task text.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, r Result) error
}

// CacheKey derives a stable key from the task text.
func CacheKey(title, description string) string {
	norm := strings.ToLower(strings.TrimSpace(title)) + "\x00" + strings.ToLower(strings.TrimSpace(description))
	sum := sha256.Sum256([]byte(norm))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// RedisCache is a Cache backed by a redigo connection pool.
type RedisCache struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewRedisCache creates a pool against addr. Connections are dialed lazily,
// so an unreachable server only surfaces on Get/Set.
func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		ttl: ttl,
		pool: &redis.Pool{
			MaxIdle:     4,
			MaxActive:   16,
			IdleTimeout: 5 * time.Minute,
			Wait:        true,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", addr,
					redis.DialConnectTimeout(2*time.Second),
					redis.DialReadTimeout(time.Second),
					redis.DialWriteTimeout(time.Second),
				)
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
	}
}

// Get returns a cached result. A miss is (Result{}, false, nil).
func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return Result{}, false, err
	}
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", key))
	if errors.Is(err, redis.ErrNil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}

	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, false, err
	}
	return r, true, nil
}

// Set stores r under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, r Result) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if c.ttl > 0 {
		_, err = conn.Do("SET", key, raw, "EX", int(c.ttl.Seconds()))
	} else {
		_, err = conn.Do("SET", key, raw)
	}
	return err
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	return err
}

// Close releases pooled connections.
func (c *RedisCache) Close() error {
	return c.pool.Close()
}
