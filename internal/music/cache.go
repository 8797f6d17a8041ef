package music

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheSize  = 512
	DefaultCacheTTL   = 5 * time.Minute
	cacheKeyPrefix    = "music:results:"
	redisCacheTimeout = 500 * time.Millisecond
)

type CacheObserver interface {
	CacheLookup(layer, result string)
}

// CachingLoader keeps successful lookups in memory and, when a Redis client
// is configured, in Redis so other shards can reuse them. Concurrent lookups
// for the same key share one call to the wrapped loader.
type CachingLoader struct {
	next     Loader
	local    *expirable.LRU[string, LoadResult]
	redis    *redislib.Client
	ttl      time.Duration
	group    singleflight.Group
	logger   *zap.Logger
	observer CacheObserver
}

func NewCachingLoader(next Loader, size int, ttl time.Duration, redis *redislib.Client, logger *zap.Logger) *CachingLoader {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingLoader{
		next:   next,
		local:  expirable.NewLRU[string, LoadResult](size, nil, ttl),
		redis:  redis,
		ttl:    ttl,
		logger: logger.Named("cache"),
	}
}

func (c *CachingLoader) WithObserver(o CacheObserver) *CachingLoader {
	c.observer = o
	return c
}

func (c *CachingLoader) Load(ctx context.Context, src *Source, target string) (LoadResult, error) {
	key := cacheKey(src, target)

	if res, ok := c.local.Get(key); ok {
		c.observe("memory", "hit")
		return res, nil
	}
	c.observe("memory", "miss")

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if res, ok := c.fromRedis(ctx, key); ok {
			c.local.Add(key, res)
			return res, nil
		}

		res, err := c.next.Load(ctx, src, target)
		if err != nil {
			return LoadResult{}, err
		}
		if res.Kind != ResultEmpty {
			c.local.Add(key, res)
			c.toRedis(ctx, key, res)
		}
		return res, nil
	})
	if err != nil {
		return LoadResult{}, err
	}
	return v.(LoadResult), nil
}

// Purge drops every in-memory entry.
func (c *CachingLoader) Purge() {
	c.local.Purge()
}

func (c *CachingLoader) fromRedis(ctx context.Context, key string) (LoadResult, bool) {
	if c.redis == nil {
		return LoadResult{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redislib.Nil) {
			c.logger.Debug("Redis cache read failed", zap.Error(err))
		}
		c.observe("redis", "miss")
		return LoadResult{}, false
	}

	var res LoadResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Debug("Discarding malformed cache entry", zap.String("key", key), zap.Error(err))
		c.observe("redis", "miss")
		return LoadResult{}, false
	}
	c.observe("redis", "hit")
	return res, true
}

func (c *CachingLoader) toRedis(ctx context.Context, key string, res LoadResult) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("Redis cache write failed", zap.Error(err))
	}
}

func (c *CachingLoader) observe(layer, result string) {
	if c.observer != nil {
		c.observer.CacheLookup(layer, result)
	}
}

func cacheKey(src *Source, target string) string {
	name := ""
	if src != nil {
		name = src.Name
	}
	return cacheKeyPrefix + name + ":" + target
}
