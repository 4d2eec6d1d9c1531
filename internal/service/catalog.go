package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
	"github.com/iliyamo/seatlock-engine/internal/cache"
	"github.com/iliyamo/seatlock-engine/internal/model"
)

// MovieInput is the editable part of a movie.
type MovieInput struct {
	Title       string
	DurationMin uint32
}

// ShowInput describes a new show.
type ShowInput struct {
	MovieID        uint64
	City           string
	HallName       string
	StartsAt       time.Time
	BasePriceCents uint32
	SeatRows       uint32
	SeatCols       uint32
}

// ShowUpdate holds the fields of a show that may change after creation.
// The seat layout cannot change once seats may have been sold.
type ShowUpdate struct {
	City           string
	HallName       string
	StartsAt       time.Time
	BasePriceCents uint32
}

// CatalogService manages movies and shows. Reads go through the cache;
// every write invalidates the entries it affects.
type CatalogService struct {
	movies MovieRepository
	shows  ShowRepository
	cache  *cache.Cache
	log    *zap.Logger
	now    func() time.Time
}

func NewCatalogService(movies MovieRepository, shows ShowRepository, c *cache.Cache, log *zap.Logger) *CatalogService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogService{movies: movies, shows: shows, cache: c, log: log.With(zap.String("service", "catalog")), now: time.Now}
}

// ListMovies returns the active movies.
func (s *CatalogService) ListMovies(ctx context.Context) ([]model.Movie, error) {
	movies, err := cache.ReadThrough(ctx, s.cache, cache.MoviesListKey, 0, func(ctx context.Context) ([]model.Movie, error) {
		return s.movies.ListActive(ctx)
	})
	if err != nil {
		return nil, dbErr(err, "movies")
	}
	return movies, nil
}

// GetMovie returns an active movie.
func (s *CatalogService) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	m, err := cache.ReadThrough(ctx, s.cache, cache.MovieKey(id), 0, func(ctx context.Context) (*model.Movie, error) {
		return s.movies.GetByID(ctx, id)
	})
	if err != nil {
		return nil, dbErr(err, "movie")
	}
	if !m.IsActive {
		return nil, apperr.NotFound("movie")
	}
	return m, nil
}

func (s *CatalogService) CreateMovie(ctx context.Context, in MovieInput) (*model.Movie, error) {
	if err := validateMovie(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m := &model.Movie{Title: strings.TrimSpace(in.Title), DurationMin: in.DurationMin, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := s.movies.Create(ctx, m); err != nil {
		return nil, dbErr(err, "movie")
	}
	s.invalidateMovie(ctx, m.ID)
	return m, nil
}

func (s *CatalogService) UpdateMovie(ctx context.Context, id uint64, in MovieInput) (*model.Movie, error) {
	if err := validateMovie(in); err != nil {
		return nil, err
	}
	m, err := s.movies.GetByID(ctx, id)
	if err != nil {
		return nil, dbErr(err, "movie")
	}
	m.Title = strings.TrimSpace(in.Title)
	m.DurationMin = in.DurationMin
	m.UpdatedAt = s.now().UTC()
	if err := s.movies.Update(ctx, m); err != nil {
		return nil, dbErr(err, "movie")
	}
	s.invalidateMovie(ctx, id)
	return m, nil
}

// DeactivateMovie hides a movie from listings. Its shows stay bookable
// until they are deactivated too; bookings check the movie at commit.
func (s *CatalogService) DeactivateMovie(ctx context.Context, id uint64) error {
	m, err := s.movies.GetByID(ctx, id)
	if err != nil {
		return dbErr(err, "movie")
	}
	m.IsActive = false
	m.UpdatedAt = s.now().UTC()
	if err := s.movies.Update(ctx, m); err != nil {
		return dbErr(err, "movie")
	}
	s.invalidateMovie(ctx, id)
	return nil
}

// GetShow returns an active show.
func (s *CatalogService) GetShow(ctx context.Context, id uint64) (*model.Show, error) {
	show, err := cache.ReadThrough(ctx, s.cache, cache.ShowKey(id), 0, func(ctx context.Context) (*model.Show, error) {
		return s.shows.GetByID(ctx, id)
	})
	if err != nil {
		return nil, dbErr(err, "show")
	}
	if !show.IsActive {
		return nil, apperr.NotFound("show")
	}
	return show, nil
}

// ListShows returns the active shows of a movie in a city.
func (s *CatalogService) ListShows(ctx context.Context, movieID uint64, city string) ([]model.Show, error) {
	city = strings.ToLower(strings.TrimSpace(city))
	fields := map[string]string{}
	if movieID == 0 {
		fields["movie_id"] = "required"
	}
	if city == "" {
		fields["city"] = "required"
	}
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Message: "invalid show query", Fields: fields}
	}
	shows, err := cache.ReadThrough(ctx, s.cache, cache.ShowsByMovieCityKey(movieID, city), 0, func(ctx context.Context) ([]model.Show, error) {
		return s.shows.ListByMovieCity(ctx, movieID, city)
	})
	if err != nil {
		return nil, dbErr(err, "shows")
	}
	return shows, nil
}

func (s *CatalogService) CreateShow(ctx context.Context, in ShowInput) (*model.Show, error) {
	if in.SeatRows == 0 || in.SeatCols == 0 {
		return nil, apperr.Invalid("seat layout must have at least one row and one column")
	}
	if strings.TrimSpace(in.City) == "" || strings.TrimSpace(in.HallName) == "" {
		return nil, apperr.Invalid("city and hall name are required")
	}
	if _, err := s.GetMovie(ctx, in.MovieID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	show := &model.Show{
		MovieID:        in.MovieID,
		City:           strings.ToLower(strings.TrimSpace(in.City)),
		HallName:       strings.TrimSpace(in.HallName),
		StartsAt:       in.StartsAt.UTC(),
		BasePriceCents: in.BasePriceCents,
		SeatRows:       in.SeatRows,
		SeatCols:       in.SeatCols,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.shows.Create(ctx, show); err != nil {
		return nil, dbErr(err, "show")
	}
	s.invalidateShow(ctx, show)
	return show, nil
}

func (s *CatalogService) UpdateShow(ctx context.Context, id uint64, in ShowUpdate) (*model.Show, error) {
	if strings.TrimSpace(in.City) == "" || strings.TrimSpace(in.HallName) == "" {
		return nil, apperr.Invalid("city and hall name are required")
	}
	show, err := s.shows.GetByID(ctx, id)
	if err != nil {
		return nil, dbErr(err, "show")
	}
	show.City = strings.ToLower(strings.TrimSpace(in.City))
	show.HallName = strings.TrimSpace(in.HallName)
	show.StartsAt = in.StartsAt.UTC()
	show.BasePriceCents = in.BasePriceCents
	show.UpdatedAt = s.now().UTC()
	if err := s.shows.Update(ctx, show); err != nil {
		return nil, dbErr(err, "show")
	}
	s.invalidateShow(ctx, show)
	return show, nil
}

// DeactivateShow stops new locks and bookings for a show. Existing bookings
// are left untouched.
func (s *CatalogService) DeactivateShow(ctx context.Context, id uint64) error {
	show, err := s.shows.GetByID(ctx, id)
	if err != nil {
		return dbErr(err, "show")
	}
	show.IsActive = false
	show.UpdatedAt = s.now().UTC()
	if err := s.shows.Update(ctx, show); err != nil {
		return dbErr(err, "show")
	}
	s.invalidateShow(ctx, show)
	return nil
}

func (s *CatalogService) invalidateMovie(ctx context.Context, id uint64) {
	s.cache.Invalidate(ctx, cache.MoviesListKey, cache.MovieKey(id))
}

// invalidateShow drops the show detail and the listings of its movie in
// every city, since the city itself may just have changed.
func (s *CatalogService) invalidateShow(ctx context.Context, show *model.Show) {
	s.cache.Invalidate(ctx, cache.ShowKey(show.ID))
	s.cache.InvalidatePrefix(ctx, cache.ShowsByMoviePrefix(show.MovieID))
}

func validateMovie(in MovieInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "required"
	}
	if in.DurationMin == 0 {
		fields["duration_min"] = "must be positive"
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Message: "invalid movie", Fields: fields}
	}
	return nil
}
