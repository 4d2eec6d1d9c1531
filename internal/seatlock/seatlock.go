// Package seatlock grants short-lived exclusive holds on seats of a show.
// A hold is a key in the ephemeral store whose TTL is the only thing that
// ever ends an abandoned reservation.
package seatlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/notify"
	"github.com/iliyamo/seatlock-engine/internal/store"
)

// DefaultTTL is how long a seat stays locked without a booking.
const DefaultTTL = 300 * time.Second

// Lock is the payload stored under a seat key.
type Lock struct {
	ShowID    uint64    `json:"-"`
	Seat      string    `json:"-"`
	UserID    uint64    `json:"user_id"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Grant describes a successful TryLock.
type Grant struct {
	ShowID    uint64
	Seats     []string
	UserID    uint64
	ExpiresAt time.Time
	// BestEffort is set when the store could not make the grant indivisible.
	BestEffort bool
}

// ShowPrefix is the common prefix of every lock key of showID. The braces
// form a Redis cluster hash tag so all seats of a show share a slot.
func ShowPrefix(showID uint64) string {
	return "seatlock:{" + strconv.FormatUint(showID, 10) + "}:"
}

// Key is the store key of one seat lock.
func Key(showID uint64, seat string) string {
	return ShowPrefix(showID) + seat
}

// Manager acquires, inspects and releases seat locks.
type Manager struct {
	store   store.Store
	ttl     time.Duration
	pub     notify.Publisher
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the timestamp source written into lock payloads.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(s store.Store, ttl time.Duration, pub notify.Publisher, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pub == nil {
		pub = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Discard()
	}
	mgr := &Manager{store: s, ttl: ttl, pub: pub, log: log.With(zap.String("component", "seatlock")), metrics: m, now: time.Now}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// TTL returns the lock lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// TryLock locks every seat for userID or none of them. When any seat is
// already held, even by userID itself, it returns a *apperr.ConflictError
// listing exactly the held seats.
func (m *Manager) TryLock(ctx context.Context, showID uint64, seats []string, userID uint64) (Grant, error) {
	if len(seats) == 0 {
		return Grant{}, apperr.Invalid("at least one seat is required")
	}

	now := m.now().UTC()
	payload, err := json.Marshal(Lock{UserID: userID, LockedAt: now, ExpiresAt: now.Add(m.ttl)})
	if err != nil {
		return Grant{}, err
	}

	keys := make([]string, len(seats))
	for i, s := range seats {
		keys[i] = Key(showID, s)
	}

	taken, err := m.store.SetAllIfAbsent(ctx, keys, string(payload), m.ttl)
	if err != nil {
		m.metrics.SeatLockAttempts.WithLabelValues("error").Inc()
		return Grant{}, storeErr("lock seats", err)
	}
	if len(taken) > 0 {
		m.metrics.SeatLockAttempts.WithLabelValues("conflict").Inc()
		return Grant{}, &apperr.ConflictError{Reason: "seats already locked", Seats: seatsOf(showID, taken)}
	}
	m.metrics.SeatLockAttempts.WithLabelValues("granted").Inc()

	grant := Grant{
		ShowID:     showID,
		Seats:      append([]string(nil), seats...),
		UserID:     userID,
		ExpiresAt:  now.Add(m.ttl),
		BestEffort: m.store.BestEffort(),
	}
	m.announce(ctx, notify.Event{Type: notify.SeatsLocked, ShowID: showID, Seats: grant.Seats, UserID: userID, At: now})
	return grant, nil
}

// Release deletes the locks of seats regardless of holder.
func (m *Manager) Release(ctx context.Context, showID uint64, seats []string) error {
	if len(seats) == 0 {
		return nil
	}
	keys := make([]string, len(seats))
	for i, s := range seats {
		keys[i] = Key(showID, s)
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		return storeErr("release seats", err)
	}
	return nil
}

// ReleaseShow deletes every lock of showID and returns how many were removed.
func (m *Manager) ReleaseShow(ctx context.Context, showID uint64) (int, error) {
	keys, err := m.store.Scan(ctx, ShowPrefix(showID))
	if err != nil {
		return 0, storeErr("scan show locks", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		return 0, storeErr("release show locks", err)
	}
	return len(keys), nil
}

// Inspect returns every live lock of showID keyed by seat label.
func (m *Manager) Inspect(ctx context.Context, showID uint64) (map[string]Lock, error) {
	keys, err := m.store.Scan(ctx, ShowPrefix(showID))
	if err != nil {
		return nil, storeErr("scan show locks", err)
	}
	return m.load(ctx, showID, keys)
}

// Holders looks up the locks of the given seats. Unlocked seats are absent
// from the result.
func (m *Manager) Holders(ctx context.Context, showID uint64, seats []string) (map[string]Lock, error) {
	keys := make([]string, len(seats))
	for i, s := range seats {
		keys[i] = Key(showID, s)
	}
	return m.load(ctx, showID, keys)
}

func (m *Manager) load(ctx context.Context, showID uint64, keys []string) (map[string]Lock, error) {
	prefix := ShowPrefix(showID)
	out := make(map[string]Lock, len(keys))
	for _, k := range keys {
		raw, ok, err := m.store.Get(ctx, k)
		if err != nil {
			return nil, storeErr("read seat lock", err)
		}
		if !ok {
			// Expired between scan and read.
			continue
		}
		var l Lock
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			m.log.Warn("skipping unreadable seat lock", zap.String("key", k), zap.Error(err))
			continue
		}
		l.ShowID = showID
		l.Seat = strings.TrimPrefix(k, prefix)
		out[l.Seat] = l
	}
	return out, nil
}

func (m *Manager) announce(ctx context.Context, ev notify.Event) {
	if err := m.pub.Publish(ctx, ev.ShowID, ev); err != nil {
		m.metrics.NotificationsDropped.Inc()
		m.log.Warn("seat event not delivered", zap.String("type", ev.Type), zap.Uint64("show_id", ev.ShowID), zap.Error(err))
	}
}

func seatsOf(showID uint64, keys []string) []string {
	prefix := ShowPrefix(showID)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, prefix)
	}
	return out
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return apperr.Unavailable("ephemeral store", fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
