// Package store provides the ephemeral key store used for seat locks, rate
// limit counters and cached read models. Two implementations exist: Redis,
// which is shared by every server instance, and Memory, an in-process
// fallback selected at startup when Redis cannot be reached.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is wrapped by every error caused by the backing store
// being slow or unreachable. Callers treat it as recoverable.
var ErrUnavailable = errors.New("ephemeral store unavailable")

// Store is the contract shared by both backends. Values are opaque strings.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetWithExpiry stores value under key for ttl.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes every given key. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Scan lists the live keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
	// Increment adds one to the counter at key, creating it at 1.
	Increment(ctx context.Context, key string) (int64, error)
	// Expire sets the time to live of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// SetAllIfAbsent sets every key to value only when none of them exists.
	// It returns the keys that already existed; an empty result means all
	// keys were set. On Redis the check and the set form one indivisible
	// step; see BestEffort.
	SetAllIfAbsent(ctx context.Context, keys []string, value string, ttl time.Duration) ([]string, error)
	// BestEffort reports whether SetAllIfAbsent may interleave with other
	// callers. It is true for the in-process fallback.
	BestEffort() bool
	// Name identifies the backend in logs and metrics.
	Name() string
}
