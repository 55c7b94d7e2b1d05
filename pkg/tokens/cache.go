package tokens

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the live token per tenant id. A ttl of zero means no expiry.
type Cache interface {
	Get(ctx context.Context, tenantID string) (string, bool, error)
	Set(ctx context.Context, tenantID, token string, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string) error
}

type memEntry struct {
	token   string
	expires time.Time
}

// MemoryCache is the in-process cache used when no Redis is configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memEntry{}, now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, tenantID string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[tenantID]
	m.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && !m.now().Before(e.expires)) {
		return "", false, nil
	}
	return e.token, true, nil
}

func (m *MemoryCache) Set(_ context.Context, tenantID, token string, ttl time.Duration) error {
	e := memEntry{token: token}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[tenantID] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, tenantID string) error {
	m.mu.Lock()
	delete(m.entries, tenantID)
	m.mu.Unlock()
	return nil
}

// RedisCache shares live tokens between processes.
type RedisCache struct {
	cli    redis.Cmdable
	prefix string
}

func NewRedisCache(cli redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{cli: cli, prefix: prefix}
}

func (r *RedisCache) key(tenantID string) string { return r.prefix + tenantID }

func (r *RedisCache) Get(ctx context.Context, tenantID string) (string, bool, error) {
	v, err := r.cli.Get(ctx, r.key(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (r *RedisCache) Set(ctx context.Context, tenantID, token string, ttl time.Duration) error {
	return r.cli.Set(ctx, r.key(tenantID), token, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, tenantID string) error {
	return r.cli.Del(ctx, r.key(tenantID)).Err()
}
