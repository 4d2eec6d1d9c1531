// Package queue carries booking lifecycle messages over RabbitMQ. The
// broker is advisory: publishing failures never fail a booking.
package queue

// BookingConfirmedQueue is the durable queue confirmed bookings go to.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published once a booking commit succeeds. It
// carries enough for downstream consumers to audit or notify without
// reading the primary database.
type BookingConfirmedEvent struct {
	BookingID        string   `json:"booking_id"`
	UserID           uint64   `json:"user_id"`
	ShowID           uint64   `json:"show_id"`
	MovieID          uint64   `json:"movie_id"`
	MovieTitle       string   `json:"movie_title"`
	City             string   `json:"city"`
	HallName         string   `json:"hall_name"`
	StartsAt         string   `json:"starts_at"`
	SeatLabels       []string `json:"seats"`
	TotalAmountCents uint64   `json:"total_amount_cents"`
	ConfirmedAt      string   `json:"confirmed_at"`
}
