package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache holds completed screening results for a short TTL so repeat
// requests for the same entity reuse the already-executed disposition
// instead of re-blocking or re-alerting.
type ResultCache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, r *Result, ttl time.Duration) error
}

// RedisCache is the shared-deployment cache: results survive restarts and
// are visible to every consumer instance.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get screening result %s: %w", key, err)
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("decode cached screening result %s: %w", key, err)
	}
	return &r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, r *Result, ttl time.Duration) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode screening result: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set screening result %s: %w", key, err)
	}
	return nil
}

// MemoryCache is the single-process fallback when Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	result    Result
	expiresAt time.Time
}

// NewMemoryCache builds an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	r := entry.result
	return &r, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, r *Result, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{result: *r, expiresAt: c.now().Add(ttl)}
	return nil
}
