package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/seatlock-engine/internal/model"
)

// MovieRepo provides CRUD for movies.
type MovieRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewMovieRepo(db *sqlx.DB, timeout time.Duration) *MovieRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MovieRepo{db: db, timeout: timeout}
}

const movieColumns = `id, title, duration_min, is_active, created_at, updated_at`

func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m model.Movie
	err := r.db.GetContext(ctx, &m, `SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListActive returns active movies ordered by title.
func (r *MovieRepo) ListActive(ctx context.Context) ([]model.Movie, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out := []model.Movie{}
	if err := r.db.SelectContext(ctx, &out, `SELECT `+movieColumns+` FROM movies WHERE is_active = 1 ORDER BY title, id`); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts m and fills in its generated ID.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO movies (title, duration_min, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		m.Title, m.DurationMin, m.IsActive, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

// Update overwrites the mutable fields of m.
func (r *MovieRepo) Update(ctx context.Context, m *model.Movie) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE movies SET title = ?, duration_min = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		m.Title, m.DurationMin, m.IsActive, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	return notFoundIfNone(res)
}

// ShowRepo provides CRUD and listing for shows.
type ShowRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewShowRepo(db *sqlx.DB, timeout time.Duration) *ShowRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ShowRepo{db: db, timeout: timeout}
}

const showColumns = `id, movie_id, city, hall_name, starts_at, base_price_cents, seat_rows, seat_cols, is_active, created_at, updated_at`

func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var s model.Show
	err := r.db.GetContext(ctx, &s, `SELECT `+showColumns+` FROM shows WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByMovieCity returns the active shows of a movie in a city by start
// time.
func (r *ShowRepo) ListByMovieCity(ctx context.Context, movieID uint64, city string) ([]model.Show, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out := []model.Show{}
	if err := r.db.SelectContext(ctx, &out,
		`SELECT `+showColumns+` FROM shows WHERE movie_id = ? AND city = ? AND is_active = 1 ORDER BY starts_at, id`,
		movieID, city); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO shows (movie_id, city, hall_name, starts_at, base_price_cents, seat_rows, seat_cols, is_active, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.MovieID, s.City, s.HallName, s.StartsAt, s.BasePriceCents, s.SeatRows, s.SeatCols, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// Update overwrites the mutable fields of s. The seat layout is fixed once
// the show exists.
func (r *ShowRepo) Update(ctx context.Context, s *model.Show) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE shows SET city = ?, hall_name = ?, starts_at = ?, base_price_cents = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		s.City, s.HallName, s.StartsAt, s.BasePriceCents, s.IsActive, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	return notFoundIfNone(res)
}

func notFoundIfNone(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
