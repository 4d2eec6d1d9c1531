package model

import "time"

// Show is a scheduled screening of a movie in a hall of some city. Its seat
// layout is a rectangle of SeatRows x SeatCols; see SeatLabel.
//
// Fields:
//
//	ID             – primary key identifier.
//	MovieID        – movie being screened.
//	City           – city the hall is in; part of the listing cache key.
//	HallName       – free-form hall name shown to customers.
//	StartsAt       – when the show begins.
//	BasePriceCents – price of every seat in cents.
//	SeatRows       – number of rows (A, B, ...).
//	SeatCols       – seats per row (1-based).
//	IsActive       – inactive shows cannot be locked or booked.
type Show struct {
	ID             uint64    `db:"id" json:"id"`
	MovieID        uint64    `db:"movie_id" json:"movie_id"`
	City           string    `db:"city" json:"city"`
	HallName       string    `db:"hall_name" json:"hall_name"`
	StartsAt       time.Time `db:"starts_at" json:"starts_at"`
	BasePriceCents uint32    `db:"base_price_cents" json:"base_price_cents"`
	SeatRows       uint32    `db:"seat_rows" json:"seat_rows"`
	SeatCols       uint32    `db:"seat_cols" json:"seat_cols"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Capacity is the number of seats in the layout.
func (s Show) Capacity() int {
	return int(s.SeatRows) * int(s.SeatCols)
}
