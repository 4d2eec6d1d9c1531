package model

import "time"

// Booking statuses.
const (
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
)

// Payment statuses.
const (
	PaymentPending = "PENDING"
	PaymentSuccess = "SUCCESS"
	PaymentFailed  = "FAILED"
)

// Booking is a committed purchase of one or more seats of a show. A booking
// is created CONFIRMED with payment PENDING. While it is not CANCELLED its
// seats are reserved in booking_seats and no other booking may hold them.
//
// Fields:
//
//	ID               – random UUID.
//	ShowID, MovieID  – what was booked.
//	UserID           – owner of the booking.
//	Seats            – seat labels in request order.
//	TotalAmountCents – base price x number of seats.
//	Status           – CONFIRMED or CANCELLED.
//	PaymentStatus    – PENDING, SUCCESS or FAILED.
//	CancelledAt      – set when the booking was cancelled.
type Booking struct {
	ID               string     `db:"id" json:"id"`
	ShowID           uint64     `db:"show_id" json:"show_id"`
	MovieID          uint64     `db:"movie_id" json:"movie_id"`
	UserID           uint64     `db:"user_id" json:"user_id"`
	Seats            []string   `db:"-" json:"seats"`
	TotalAmountCents uint64     `db:"total_amount_cents" json:"total_amount_cents"`
	Status           string     `db:"status" json:"status"`
	PaymentStatus    string     `db:"payment_status" json:"payment_status"`
	CancelledAt      *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Cancelled reports whether the booking no longer holds its seats.
func (b Booking) Cancelled() bool { return b.Status == BookingCancelled }

// Paid reports whether payment settled successfully.
func (b Booking) Paid() bool { return b.PaymentStatus == PaymentSuccess }
