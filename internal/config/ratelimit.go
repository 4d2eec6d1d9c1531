package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/iliyamo/seatlock-engine/internal/ratelimit"
)

// RateLimitConfig holds the fixed-window budgets for seat locks (per user
// and show) and booking commits (per user).
type RateLimitConfig struct {
	LockMax       int64
	LockWindow    time.Duration
	BookingMax    int64
	BookingWindow time.Duration
}

func loadRateLimit(v *viper.Viper) RateLimitConfig {
	return RateLimitConfig{
		LockMax:       v.GetInt64("RATE_LIMIT_LOCK_MAX"),
		LockWindow:    v.GetDuration("RATE_LIMIT_LOCK_WINDOW"),
		BookingMax:    v.GetInt64("RATE_LIMIT_BOOKING_MAX"),
		BookingWindow: v.GetDuration("RATE_LIMIT_BOOKING_WINDOW"),
	}
}

// Policies converts the budgets for ratelimit.New. Non-positive values are
// passed through; the limiter keeps its defaults for those.
func (r RateLimitConfig) Policies() map[string]ratelimit.Policy {
	return map[string]ratelimit.Policy{
		ratelimit.ActionLock:    {Max: r.LockMax, Window: r.LockWindow},
		ratelimit.ActionBooking: {Max: r.BookingMax, Window: r.BookingWindow},
	}
}
