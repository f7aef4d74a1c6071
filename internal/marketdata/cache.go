package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

// Cache stores recent bar series by key.
type Cache interface {
	Get(ctx context.Context, key string) (models.BarSeries, bool, error)
	Set(ctx context.Context, key string, series models.BarSeries, ttl time.Duration) error
}

type memoryEntry struct {
	series  models.BarSeries
	expires time.Time
}

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns a live entry.
func (c *MemoryCache) Get(_ context.Context, key string) (models.BarSeries, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		return models.BarSeries{}, false, nil
	}
	return entry.series, true, nil
}

// Set stores series until ttl elapses and drops every entry that has expired.
func (c *MemoryCache) Set(_ context.Context, key string, series models.BarSeries, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{series: series, expires: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache keeps bar series as JSON in Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisCacheFromURL connects using a redis:// URL.
func NewRedisCacheFromURL(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.NewValidationError("redis_url", url, "cannot parse", apperrors.ErrConfigInvalid)
	}
	return NewRedisCache(redis.NewClient(opts)), nil
}

// Get returns the cached series. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (models.BarSeries, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return models.BarSeries{}, false, nil
	}
	if err != nil {
		return models.BarSeries{}, false, apperrors.Wrapf(err, "redis get %s", key)
	}

	var series models.BarSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		return models.BarSeries{}, false, apperrors.Wrapf(err, "decode cached bars %s", key)
	}
	return series, true, nil
}

// Set stores the series with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, series models.BarSeries, ttl time.Duration) error {
	raw, err := json.Marshal(series)
	if err != nil {
		return apperrors.Wrap(err, "encode bars")
	}
	return apperrors.Wrapf(c.client.Set(ctx, key, raw, ttl).Err(), "redis set %s", key)
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedProvider serves bars from a cache and falls through to the wrapped provider.
type CachedProvider struct {
	inner  Provider
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedProvider wraps p with cache entries living for ttl.
func NewCachedProvider(p Provider, cache Cache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: p, cache: cache, ttl: ttl, logger: zerolog.Nop()}
}

// WithLogger sets the logger that records cache failures at debug level.
func (c *CachedProvider) WithLogger(logger zerolog.Logger) *CachedProvider {
	c.logger = logger
	return c
}

// Bars returns cached bars when present. Cache failures degrade to a direct fetch.
func (c *CachedProvider) Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
	key := cacheKey(symbol, tf)
	series, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		return series, nil
	}

	series, err = c.inner.Bars(ctx, symbol, tf)
	if err != nil {
		return series, err
	}
	if !series.Empty() {
		if err := c.cache.Set(ctx, key, series, c.ttl); err != nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return series, nil
}
