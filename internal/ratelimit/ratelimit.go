// Package ratelimit implements the fixed-window counters that throttle seat
// locking and booking commits per user. Limits are enforced on the shared
// ephemeral store so every instance counts against the same window.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/store"
)

const (
	ActionLock    = "lock"
	ActionBooking = "booking"
)

// Policy is the budget for one action: at most Max calls per Window.
type Policy struct {
	Max    int64
	Window time.Duration
}

// DefaultPolicies are used for any action the caller does not override.
var DefaultPolicies = map[string]Policy{
	ActionLock:    {Max: 20, Window: 60 * time.Second},
	ActionBooking: {Max: 10, Window: 60 * time.Second},
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

// Limiter counts calls per (action, subject) in fixed windows.
type Limiter struct {
	store    store.Store
	policies map[string]Policy
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// New returns a Limiter. policies overrides entries of DefaultPolicies.
func New(s store.Store, policies map[string]Policy, log *zap.Logger, m *metrics.Metrics) *Limiter {
	merged := make(map[string]Policy, len(DefaultPolicies)+len(policies))
	for k, v := range DefaultPolicies {
		merged[k] = v
	}
	for k, v := range policies {
		if v.Max > 0 && v.Window > 0 {
			merged[k] = v
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Limiter{store: s, policies: merged, log: log.With(zap.String("component", "ratelimit")), metrics: m}
}

// Key is the counter key for action and subject.
func Key(action, subject string) string {
	return "rl:" + action + ":" + subject
}

// LockSubject scopes lock attempts to one user on one show.
func LockSubject(userID, showID uint64) string {
	return strconv.FormatUint(userID, 10) + ":" + strconv.FormatUint(showID, 10)
}

// BookingSubject scopes booking commits to one user.
func BookingSubject(userID uint64) string {
	return strconv.FormatUint(userID, 10)
}

// Allow counts one call and reports whether it fits the window. It never
// returns an error: when the store fails the call is allowed and the failure
// is logged.
func (l *Limiter) Allow(ctx context.Context, action, subject string) Decision {
	p, ok := l.policies[action]
	if !ok {
		return Decision{Allowed: true}
	}
	key := Key(action, subject)

	n, err := l.store.Increment(ctx, key)
	if err != nil {
		l.failOpen(action, key, err)
		return Decision{Allowed: true, Limit: p.Max}
	}
	if n == 1 {
		if err := l.store.Expire(ctx, key, p.Window); err != nil {
			// A counter without expiry would throttle the subject forever.
			if derr := l.store.Delete(ctx, key); derr != nil {
				l.log.Warn("rate limit counter left without expiry",
					zap.String("key", key), zap.Error(derr))
			}
			l.failOpen(action, key, err)
			return Decision{Allowed: true, Count: n, Limit: p.Max}
		}
	}

	if n > p.Max {
		l.metrics.RateLimitDecisions.WithLabelValues(action, "rejected").Inc()
		return Decision{Allowed: false, Count: n, Limit: p.Max, RetryAfter: p.Window}
	}
	l.metrics.RateLimitDecisions.WithLabelValues(action, "allowed").Inc()
	return Decision{Allowed: true, Count: n, Limit: p.Max}
}

func (l *Limiter) failOpen(action, key string, err error) {
	l.metrics.RateLimitStoreErrors.Inc()
	l.metrics.RateLimitDecisions.WithLabelValues(action, "fail_open").Inc()
	l.log.Warn("rate limiter store error, allowing request",
		zap.String("key", key), zap.Error(err))
}
