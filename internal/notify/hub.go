package notify

import (
	"context"
	"sync"

	"github.com/iliyamo/seatlock-engine/internal/metrics"
)

const defaultBuffer = 16

// Subscription receives the events of one show until it is closed.
type Subscription struct {
	ShowID uint64
	C      <-chan Event

	ch   chan Event
	once sync.Once
}

// Hub keeps one room per show and broadcasts to the room's subscribers.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uint64]map[*Subscription]struct{}
	buffer  int
	metrics *metrics.Metrics
}

// NewHub returns an empty hub. buffer is the per-subscriber queue length.
func NewHub(buffer int, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Hub{rooms: make(map[uint64]map[*Subscription]struct{}), buffer: buffer, metrics: m}
}

// Subscribe joins the room of showID.
func (h *Hub) Subscribe(showID uint64) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{ShowID: showID, C: ch, ch: ch}

	h.mu.Lock()
	room, ok := h.rooms[showID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[showID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe leaves the room and closes the subscription channel. Calling
// it twice is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if room, ok := h.rooms[sub.ShowID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, sub.ShowID)
		}
	}
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers ev to every current subscriber of showID without
// blocking. Subscribers whose queue is full miss the event.
func (h *Hub) Publish(_ context.Context, showID uint64, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[showID] {
		select {
		case sub.ch <- ev:
		default:
			h.metrics.NotificationsDropped.Inc()
		}
	}
	return nil
}

// Viewers returns the number of subscribers of showID.
func (h *Hub) Viewers(showID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[showID])
}
