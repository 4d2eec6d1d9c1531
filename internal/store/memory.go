package store

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is the in-process fallback store. It is only consistent within one
// process: other server instances cannot see its keys, and SetAllIfAbsent
// checks and sets in two separate steps. BestEffort reports true so callers
// can surface the weaker guarantee.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

// MemoryOption customises a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an empty in-process store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{entries: make(map[string]memEntry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Name() string     { return "memory" }
func (m *Memory) BestEffort() bool { return true }

// live returns the entry for key, dropping it when expired. Caller holds mu.
func (m *Memory) live(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	return e.value, ok, nil
}

func (m *Memory) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: m.deadline(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := m.live(k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) Increment(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.entries[key] = e
	return n, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return nil
	}
	e.expiresAt = m.deadline(ttl)
	m.entries[key] = e
	return nil
}

// SetAllIfAbsent runs the existence check and the writes as two separate
// critical sections. Two callers can both pass the check before either
// writes; the durable unique index catches what slips through.
func (m *Memory) SetAllIfAbsent(_ context.Context, keys []string, value string, ttl time.Duration) ([]string, error) {
	m.mu.Lock()
	var taken []string
	for _, k := range keys {
		if _, ok := m.live(k); ok {
			taken = append(taken, k)
		}
	}
	m.mu.Unlock()
	if len(taken) > 0 {
		return taken, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	deadline := m.deadline(ttl)
	for _, k := range keys {
		m.entries[k] = memEntry{value: value, expiresAt: deadline}
	}
	return nil, nil
}

// Sweep drops every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if _, ok := m.live(k); !ok {
			n++
		}
	}
	return n
}

// RunJanitor sweeps expired entries every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}
