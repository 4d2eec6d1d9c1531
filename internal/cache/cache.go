// Package cache implements read-through caching of catalog and booking read
// models on the ephemeral store. The cache is advisory: every failure falls
// back to the loader, and correctness never depends on a cached value.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/store"
)

// Cache wraps a store with a default TTL. A nil *Cache is valid and always
// calls the loader.
type Cache struct {
	store   store.Store
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(s store.Store, ttl time.Duration, log *zap.Logger, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Cache{store: s, ttl: ttl, log: log.With(zap.String("component", "cache")), metrics: m}
}

// TTL is the default entry lifetime.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// ReadThrough returns the cached value under key or, on a miss, calls load
// and stores its result for ttl (the cache default when ttl is zero). Decode
// and store errors are treated as misses; a failed write-back is logged and
// the loaded value is still returned. Loader errors are returned unchanged
// and nothing is cached.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.CacheRequests.WithLabelValues("error").Inc()
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	case ok:
		var v T
		derr := json.Unmarshal([]byte(raw), &v)
		if derr == nil {
			c.metrics.CacheRequests.WithLabelValues("hit").Inc()
			return v, nil
		}
		c.metrics.CacheRequests.WithLabelValues("error").Inc()
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(derr))
	default:
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if payload, merr := json.Marshal(v); merr != nil {
		c.log.Warn("cache value not serialisable", zap.String("key", key), zap.Error(merr))
	} else if serr := c.store.SetWithExpiry(ctx, key, string(payload), ttl); serr != nil {
		c.log.Warn("cache write-back failed", zap.String("key", key), zap.Error(serr))
	}
	return v, nil
}

// Invalidate removes keys. Failures are logged; the entries then age out
// through their TTL.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c == nil {
		return
	}
	keys, err := c.store.Scan(ctx, prefix)
	if err != nil {
		c.log.Warn("cache prefix scan failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	c.Invalidate(ctx, keys...)
}

// Cache keys.

const (
	MoviesListKey = "cache:movies:list"
)

func MovieKey(id uint64) string {
	return "cache:movies:" + strconv.FormatUint(id, 10)
}

func ShowKey(id uint64) string {
	return "cache:shows:" + strconv.FormatUint(id, 10)
}

// ShowsByMoviePrefix covers the show listings of a movie in every city.
func ShowsByMoviePrefix(movieID uint64) string {
	return "cache:shows:movie:" + strconv.FormatUint(movieID, 10) + ":"
}

func ShowsByMovieCityKey(movieID uint64, city string) string {
	return ShowsByMoviePrefix(movieID) + "city:" + city
}

func UserBookingsKey(userID uint64) string {
	return "cache:bookings:user:" + strconv.FormatUint(userID, 10)
}
