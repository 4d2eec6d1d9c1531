package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seatlock-engine/internal/model"
)

// BookingRepo persists bookings and the seats they hold.
type BookingRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBookingRepo binds the repository to db. Every call is bounded by
// timeout in addition to the caller's context; zero means 5 seconds.
func NewBookingRepo(db *sqlx.DB, timeout time.Duration) *BookingRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BookingRepo{db: db, timeout: timeout}
}

type bookingSeatRow struct {
	BookingID string `db:"booking_id"`
	SeatLabel string `db:"seat_label"`
}

const bookingColumns = `id, show_id, movie_id, user_id, total_amount_cents, status, payment_status, cancelled_at, created_at, updated_at`

// Create inserts b and one live booking_seats row per seat in a single
// transaction. It returns ErrSeatTaken when the unique index rejects a seat.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const ins = `INSERT INTO bookings (id, show_id, movie_id, user_id, total_amount_cents, status, payment_status, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins, b.ID, b.ShowID, b.MovieID, b.UserID, b.TotalAmountCents,
		b.Status, b.PaymentStatus, b.CreatedAt, b.UpdatedAt); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	query := `INSERT INTO booking_seats (booking_id, show_id, seat_label, position, active) VALUES `
	args := make([]interface{}, 0, len(b.Seats)*4)
	for i, seat := range b.Seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, 1)"
		args = append(args, b.ID, b.ShowID, seat, i)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicate(err) {
			return ErrSeatTaken
		}
		return fmt.Errorf("insert booking seats: %w", err)
	}
	return tx.Commit()
}

// OccupiedSeats returns which of seats are held by a live booking of
// showID. With no seats given it returns every occupied seat of the show.
func (r *BookingRepo) OccupiedSeats(ctx context.Context, showID uint64, seats []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		query string
		args  []interface{}
		err   error
	)
	if len(seats) == 0 {
		query = `SELECT seat_label FROM booking_seats WHERE show_id = ? AND active = 1 ORDER BY seat_label`
		args = []interface{}{showID}
	} else {
		query, args, err = sqlx.In(`SELECT seat_label FROM booking_seats WHERE show_id = ? AND active = 1 AND seat_label IN (?) ORDER BY seat_label`, showID, seats)
		if err != nil {
			return nil, err
		}
	}
	out := []string{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID loads a booking with its seats in booking order.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var b model.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &b.Seats,
		`SELECT seat_label FROM booking_seats WHERE booking_id = ? ORDER BY position`, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	bookings := []model.Booking{}
	if err := r.db.SelectContext(ctx, &bookings,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id`, userID); err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return bookings, nil
	}

	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	query, args, err := sqlx.In(`SELECT booking_id, seat_label FROM booking_seats WHERE booking_id IN (?) ORDER BY booking_id, position`, ids)
	if err != nil {
		return nil, err
	}
	var rows []bookingSeatRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byID := make(map[string][]string, len(bookings))
	for _, row := range rows {
		byID[row.BookingID] = append(byID[row.BookingID], row.SeatLabel)
	}
	for i := range bookings {
		bookings[i].Seats = byID[bookings[i].ID]
	}
	return bookings, nil
}

// Cancel marks a confirmed, unpaid booking CANCELLED and frees its seats.
func (r *BookingRepo) Cancel(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE bookings SET status = 'CANCELLED', cancelled_at = ?, updated_at = ?
               WHERE id = ? AND status = 'CONFIRMED' AND payment_status <> 'SUCCESS'`
	return r.closeAndFree(ctx, id, q, at, at, id)
}

// SettleSuccess records a successful payment on a confirmed, pending booking.
func (r *BookingRepo) SettleSuccess(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `UPDATE bookings SET payment_status = 'SUCCESS', updated_at = ?
               WHERE id = ? AND status = 'CONFIRMED' AND payment_status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, q, at, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SettleFailed records a failed payment, cancels the booking and frees its
// seats.
func (r *BookingRepo) SettleFailed(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE bookings SET payment_status = 'FAILED', status = 'CANCELLED', cancelled_at = ?, updated_at = ?
               WHERE id = ? AND status = 'CONFIRMED' AND payment_status = 'PENDING'`
	return r.closeAndFree(ctx, id, q, at, at, id)
}

func (r *BookingRepo) closeAndFree(ctx context.Context, id, update string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE booking_seats SET active = NULL WHERE booking_id = ?`, id); err != nil {
		return fmt.Errorf("free booking seats: %w", err)
	}
	return tx.Commit()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStateChanged
	}
	return nil
}
