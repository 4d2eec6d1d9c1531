// Package service holds the seat reservation and booking workflows and the
// catalog they run against. Services coordinate requests only through the
// ephemeral store and the database; no in-process lock is shared between
// requests.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
	"github.com/iliyamo/seatlock-engine/internal/model"
	"github.com/iliyamo/seatlock-engine/internal/queue"
	"github.com/iliyamo/seatlock-engine/internal/repository"
)

// BookingRepository is the durable booking store.
type BookingRepository interface {
	// Create returns repository.ErrSeatTaken when a seat is already held
	// by a live booking.
	Create(ctx context.Context, b *model.Booking) error
	OccupiedSeats(ctx context.Context, showID uint64, seats []string) ([]string, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	// Cancel, SettleSuccess and SettleFailed return
	// repository.ErrStateChanged when the booking is no longer eligible.
	Cancel(ctx context.Context, id string, at time.Time) error
	SettleSuccess(ctx context.Context, id string, at time.Time) error
	SettleFailed(ctx context.Context, id string, at time.Time) error
}

type ShowRepository interface {
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
	ListByMovieCity(ctx context.Context, movieID uint64, city string) ([]model.Show, error)
	Create(ctx context.Context, s *model.Show) error
	Update(ctx context.Context, s *model.Show) error
}

type MovieRepository interface {
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
	ListActive(ctx context.Context) ([]model.Movie, error)
	Create(ctx context.Context, m *model.Movie) error
	Update(ctx context.Context, m *model.Movie) error
}

// BookingEvents receives committed bookings for downstream processing.
type BookingEvents interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

type nopEvents struct{}

func (nopEvents) PublishBookingConfirmed(context.Context, queue.BookingConfirmedEvent) error {
	return nil
}

// dbErr maps repository errors onto the application taxonomy.
func dbErr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return apperr.Unavailable("database", err)
}
