package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
)

// Cache stores provider responses keyed by request content.
type Cache interface {
	Get(ctx context.Context, key string) (types.Recommendation, bool)
	Set(ctx context.Context, key string, rec types.Recommendation)
}

// NewCache returns the cache selected by cfg.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.TTL), nil
	case "redis":
		return NewRedisCache(cfg.Redis, cfg.TTL)
	case "none":
		return nopCache{}, nil
	default:
		return nil, fmt.Errorf("recommend: unknown cache backend %q", cfg.Backend)
	}
}

// cacheKey identifies a request by pilot, model and rendered prompt.
func cacheKey(model string, r Request) string {
	h := sha256.Sum256([]byte(r.PilotID + "\x00" + model + "\x00" + Prompt(r)))
	return "pilotwatch:rec:" + hex.EncodeToString(h[:])
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (types.Recommendation, bool) {
	return types.Recommendation{}, false
}
func (nopCache) Set(context.Context, string, types.Recommendation) {}

// MemoryCache is a process-local cache backed by go-cache.
type MemoryCache struct {
	c   *cache.Cache
	ttl time.Duration
}

// NewMemoryCache creates a MemoryCache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{c: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (m *MemoryCache) Get(_ context.Context, key string) (types.Recommendation, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return types.Recommendation{}, false
	}
	rec, ok := v.(types.Recommendation)
	return rec, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, rec types.Recommendation) {
	m.c.Set(key, rec, m.ttl)
}

// RedisCache shares cached responses between server instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password(),
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("recommend: connect redis %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (types.Recommendation, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Recommendation{}, false
	}
	if err != nil {
		slog.Warn("recommend: redis get failed", "key", key, "err", err)
		return types.Recommendation{}, false
	}
	var rec types.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("recommend: discarding unreadable cache entry", "key", key, "err", err)
		return types.Recommendation{}, false
	}
	return rec, true
}

func (r *RedisCache) Set(ctx context.Context, key string, rec types.Recommendation) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		slog.Warn("recommend: redis set failed", "key", key, "err", err)
	}
}

// Close releases the Redis connection pool.
func (r *RedisCache) Close() error { return r.client.Close() }
