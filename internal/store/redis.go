package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// setAllIfAbsentScript checks every key and, only if none exists, sets all
// of them with the same value and millisecond TTL. Redis runs scripts one at
// a time, so no other caller can observe a partial outcome. Keys that share a
// hash tag land in the same cluster slot.
var setAllIfAbsentScript = redis.NewScript(`
    local taken = {}
    for i, key in ipairs(KEYS) do
        if redis.call('EXISTS', key) == 1 then
            table.insert(taken, key)
        end
    end
    if #taken > 0 then
        return taken
    end
    for i, key in ipairs(KEYS) do
        redis.call('SET', key, ARGV[1], 'PX', ARGV[2])
    end
    return {}
`)

const defaultOpTimeout = 500 * time.Millisecond

// Redis implements Store on a shared Redis server.
type Redis struct {
	rdb       redis.UniversalClient
	opTimeout time.Duration
	scanCount int64
}

// NewRedis wraps an established client. opTimeout bounds every single call;
// zero selects a 500ms default.
func NewRedis(rdb redis.UniversalClient, opTimeout time.Duration) *Redis {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Redis{rdb: rdb, opTimeout: opTimeout, scanCount: 200}
}

func (r *Redis) Name() string     { return "redis" }
func (r *Redis) BestEffort() bool { return false }

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", err)
	}
	return v, true, nil
}

func (r *Redis) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return wrap("del", err)
	}
	return nil
}

// Scan walks the keyspace with SCAN so large keyspaces never block the server.
func (r *Redis) Scan(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	pattern := escapeGlob(prefix) + "*"
	seen := make(map[string]struct{})
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.rdb.Scan(ctx, cursor, pattern, r.scanCount).Result()
		if err != nil {
			return nil, wrap("scan", err)
		}
		for _, k := range batch {
			// SCAN may return a key more than once.
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (r *Redis) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrap("incr", err)
	}
	return n, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	if err := r.rdb.PExpire(ctx, key, ttl).Err(); err != nil {
		return wrap("pexpire", err)
	}
	return nil
}

func (r *Redis) SetAllIfAbsent(ctx context.Context, keys []string, value string, ttl time.Duration) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ms := ttl.Milliseconds()
	if ms <= 0 {
		return nil, fmt.Errorf("set all if absent: ttl must be at least 1ms, got %s", ttl)
	}
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	res, err := setAllIfAbsentScript.Run(ctx, r.rdb, keys, value, ms).StringSlice()
	if err != nil {
		return nil, wrap("set all if absent", err)
	}
	return res, nil
}

func wrap(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %v", op, ErrUnavailable, err)
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
