package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "seat-events:"

// Channel is the Redis pub/sub channel carrying events of showID.
func Channel(showID uint64) string {
	return channelPrefix + strconv.FormatUint(showID, 10)
}

// RedisRelay publishes events through Redis pub/sub so that viewers
// connected to any instance receive them. Run feeds the local hub.
type RedisRelay struct {
	rdb redis.UniversalClient
	hub *Hub
	log *zap.Logger

	retry    time.Duration
	maxRetry time.Duration
}

func NewRedisRelay(rdb redis.UniversalClient, hub *Hub, log *zap.Logger) *RedisRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{
		rdb:      rdb,
		hub:      hub,
		log:      log.With(zap.String("component", "notify_relay")),
		retry:    time.Second,
		maxRetry: 30 * time.Second,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, showID uint64, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, Channel(showID), payload).Err()
}

// Run subscribes to every show channel and forwards decoded events to the
// hub until ctx is cancelled, resubscribing with backoff whenever the
// subscription fails. ready, if non-nil, is closed once the first
// subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) {
	backoff := r.retry
	for {
		subscribed, err := r.forward(ctx, ready)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			ready = nil
			backoff = r.retry
		}
		r.log.Warn("seat event subscription lost, resubscribing", zap.Error(err), zap.Duration("retry_in", backoff))
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if backoff < r.maxRetry {
			backoff *= 2
		}
	}
}

// forward runs one subscription. It reports whether the subscription was
// confirmed before it ended.
func (r *RedisRelay) forward(ctx context.Context, ready chan<- struct{}) (bool, error) {
	ps := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return false, err
	}
	if ready != nil {
		close(ready)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, errors.New("subscription channel closed")
			}
			showID, err := strconv.ParseUint(strings.TrimPrefix(msg.Channel, channelPrefix), 10, 64)
			if err != nil {
				r.log.Warn("ignoring event on unexpected channel", zap.String("channel", msg.Channel))
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("ignoring malformed seat event", zap.Uint64("show_id", showID), zap.Error(err))
				continue
			}
			_ = r.hub.Publish(ctx, showID, ev)
		}
	}
}
