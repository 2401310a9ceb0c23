// Package store persists finished profiling reports for later retrieval, e.g. by a
// dashboard or a follow-up diagnostic pass. The in-memory cache is the default; the
// Redis-backed cache is for deployments that run the engine across multiple processes
// sharing one report store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportCache persists reports keyed by run ID.
type ReportCache interface {
	// Put stores data under runID, replacing any existing entry.
	Put(ctx context.Context, runID string, data []byte) error

	// Get returns the data stored under runID, or ok=false if absent.
	Get(ctx context.Context, runID string) (data []byte, ok bool, err error)

	// Close releases any underlying connection.
	Close() error
}

// MemoryCache is an in-process ReportCache backed by a mutex-guarded map. Safe for
// concurrent use.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryCache builds an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

// Put implements ReportCache.
func (c *MemoryCache) Put(_ context.Context, runID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), data...)
	c.data[runID] = cp
	return nil
}

// Get implements ReportCache.
func (c *MemoryCache) Get(_ context.Context, runID string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.data[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Close implements ReportCache. It is a no-op for MemoryCache.
func (c *MemoryCache) Close() error { return nil }

// RedisOptions configures a RedisCache connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379").
	URL string

	// KeyPrefix namespaces every key this cache writes. Default "adaptprofiler:report:".
	KeyPrefix string

	// TTL is how long a stored report survives before Redis expires it. Zero means no
	// expiry.
	TTL time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// RedisCache is a ReportCache backed by Redis, for deployments where multiple engine
// processes share one report store.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCache connects to Redis and verifies connectivity with a ping.
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "adaptprofiler:report:"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("store: parsing redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connecting to redis: %w", err)
	}

	return &RedisCache{client: client, keyPrefix: opts.KeyPrefix, ttl: opts.TTL}, nil
}

func (c *RedisCache) key(runID string) string {
	return c.keyPrefix + runID
}

// Put implements ReportCache.
func (c *RedisCache) Put(ctx context.Context, runID string, data []byte) error {
	if err := c.client.Set(ctx, c.key(runID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store: writing report %s: %w", runID, err)
	}
	return nil
}

// Get implements ReportCache.
func (c *RedisCache) Get(ctx context.Context, runID string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: reading report %s: %w", runID, err)
	}
	return data, true, nil
}

// Close implements ReportCache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// PutReport is a convenience wrapper that JSON-encodes v before storing it.
func PutReport(ctx context.Context, cache ReportCache, runID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshaling report %s: %w", runID, err)
	}
	return cache.Put(ctx, runID, data)
}

// GetReport is a convenience wrapper that JSON-decodes the cached bytes into v.
func GetReport(ctx context.Context, cache ReportCache, runID string, v any) (bool, error) {
	data, ok, err := cache.Get(ctx, runID)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("store: unmarshaling report %s: %w", runID, err)
	}
	return true, nil
}
