package model

import "time"

// Movie is a catalog entry. Shows reference it by MovieID.
type Movie struct {
	ID          uint64    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	DurationMin uint32    `db:"duration_min" json:"duration_min"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
