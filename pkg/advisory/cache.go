package advisory

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/treatment-compliance-server/internal/domain"
)

// Cache stores successful advisory opinions.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.AdvisoryOpinion, bool, error)
	Set(ctx context.Context, key string, opinion *domain.AdvisoryOpinion, ttl time.Duration) error
	Close() error
}

// CacheKey derives the cache key from cancer type, drug and the sorted active biomarkers.
func CacheKey(req *domain.AdvisoryRequest) string {
	data := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(req.CancerType)),
		strings.ToLower(strings.TrimSpace(req.Treatment)),
		strings.Join(req.Biomarkers.Active(), ","),
	}, "|")
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("advisory:opinion:%x", hash[:16])
}

// MemoryCache is a bounded in-process LRU with per-cache expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, domain.AdvisoryOpinion]
}

// NewMemoryCache creates an LRU holding up to size opinions for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{lru: expirable.NewLRU[string, domain.AdvisoryOpinion](size, nil, ttl)}
}

// Get returns a copy of the cached opinion.
func (m *MemoryCache) Get(_ context.Context, key string) (*domain.AdvisoryOpinion, bool, error) {
	opinion, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneOpinion(&opinion), true, nil
}

// Set stores a copy of the opinion. The per-entry ttl is ignored in favor of the cache-wide expiry.
func (m *MemoryCache) Set(_ context.Context, key string, opinion *domain.AdvisoryOpinion, _ time.Duration) error {
	if opinion == nil {
		return nil
	}
	m.lru.Add(key, *cloneOpinion(opinion))
	return nil
}

// Len reports the number of live entries.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}

// RedisCache shares opinions across server instances.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// cachedOpinion is the Redis envelope with expiry metadata.
type cachedOpinion struct {
	Data      *domain.AdvisoryOpinion `json:"data"`
	CachedAt  time.Time               `json:"cached_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, config.DefaultTTL), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	if defaultTTL == 0 {
		defaultTTL = 24 * time.Hour
	}
	return &RedisCache{redis: client, defaultTTL: defaultTTL}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*domain.AdvisoryOpinion, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get advisory cache: %w", err)
	}

	var cached cachedOpinion
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Data == nil {
		// Corrupted entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return cached.Data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, opinion *domain.AdvisoryOpinion, ttl time.Duration) error {
	if opinion == nil {
		return nil
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	data, err := json.Marshal(cachedOpinion{
		Data:      opinion,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal advisory cache data: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Ping checks if the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.redis.Close()
}

func cloneOpinion(o *domain.AdvisoryOpinion) *domain.AdvisoryOpinion {
	out := *o
	if o.ScoreRecommendation != nil {
		v := *o.ScoreRecommendation
		out.ScoreRecommendation = &v
	}
	return &out
}
