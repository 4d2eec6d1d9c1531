// Package notify fans seat events out to viewers of a show. Delivery is
// at-most-once: a slow subscriber loses events instead of stalling the
// publisher, and a relay failure is logged and forgotten.
package notify

import (
	"context"
	"time"
)

// Event types.
const (
	SeatsLocked                 = "seatsLocked"
	SeatsBooked                 = "seatsBooked"
	SeatsReleased               = "seatsReleased"
	SeatsClearedAfterSettlement = "seatsClearedAfterSettlement"
)

// Event is what viewers of a show receive.
type Event struct {
	Type   string    `json:"type"`
	ShowID uint64    `json:"show_id"`
	Seats  []string  `json:"seats,omitempty"`
	UserID uint64    `json:"user_id,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher is the only capability the booking core needs from the
// notification layer.
type Publisher interface {
	Publish(ctx context.Context, showID uint64, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, uint64, Event) error { return nil }
