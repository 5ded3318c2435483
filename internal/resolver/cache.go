package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheClient is the subset of *redis.Client used by Cached.
type CacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CacheObserver is notified about cache lookups.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// Cached is a read-through Redis cache of resolution responses keyed by
// link. Redis failures are logged and bypassed, never surfaced.
type Cached struct {
	next     Fetcher
	client   CacheClient
	ttl      time.Duration
	observer CacheObserver
}

// NewCached wraps next with a cache kept for ttl.
func NewCached(next Fetcher, client CacheClient, ttl time.Duration, observer CacheObserver) *Cached {
	return &Cached{next: next, client: client, ttl: ttl, observer: observer}
}

// CacheKey returns the Redis key for a link.
func CacheKey(link string) string {
	sum := sha256.Sum256([]byte(link))
	return "receipt:link:" + hex.EncodeToString(sum[:])
}

func (c *Cached) Fetch(ctx context.Context, link string) ([]byte, error) {
	key := CacheKey(link)

	body, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.hit()
		slog.Debug("Receipt cache hit", "key", key)
		return body, nil
	case errors.Is(err, redis.Nil):
		c.miss()
	default:
		c.miss()
		slog.Warn("Receipt cache read failed", "key", key, "error", err)
	}

	body, err = c.next.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		slog.Warn("Receipt cache write failed", "key", key, "error", err)
	}
	return body, nil
}

func (c *Cached) hit() {
	if c.observer != nil {
		c.observer.CacheHit()
	}
}

func (c *Cached) miss() {
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}

// NewRedisClient connects to Redis and verifies it with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
