package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
)

func TestCatalog_ListMoviesIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	movies, err := f.catalog.ListMovies(ctx)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	_, err = f.catalog.ListMovies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.movies.lists)

	m, err := f.catalog.CreateMovie(ctx, MovieInput{Title: "  Ronin ", DurationMin: 122})
	require.NoError(t, err)
	assert.Equal(t, "Ronin", m.Title)

	movies, err = f.catalog.ListMovies(ctx)
	require.NoError(t, err)
	assert.Len(t, movies, 2)
	assert.Equal(t, 2, f.movies.lists)
}

func TestCatalog_MovieMutationsInvalidateDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.catalog.GetMovie(ctx, movieID)
	require.NoError(t, err)
	assert.Equal(t, "Heat", m.Title)

	_, err = f.catalog.UpdateMovie(ctx, movieID, MovieInput{Title: "Heat (1995)", DurationMin: 170})
	require.NoError(t, err)
	m, err = f.catalog.GetMovie(ctx, movieID)
	require.NoError(t, err)
	assert.Equal(t, "Heat (1995)", m.Title)

	require.NoError(t, f.catalog.DeactivateMovie(ctx, movieID))
	_, err = f.catalog.GetMovie(ctx, movieID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	movies, err := f.catalog.ListMovies(ctx)
	require.NoError(t, err)
	assert.Empty(t, movies)
}

func TestCatalog_MovieValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.CreateMovie(context.Background(), MovieInput{})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "title")
	assert.Contains(t, ve.Fields, "duration_min")

	_, err = f.catalog.UpdateMovie(context.Background(), 999, MovieInput{Title: "x", DurationMin: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCatalog_GetShowIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := f.catalog.GetShow(ctx, showID)
		require.NoError(t, err)
		assert.Equal(t, 25, s.Capacity())
	}
	assert.Equal(t, 1, f.shows.gets)

	_, err := f.catalog.GetShow(ctx, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCatalog_ShowListingsFollowMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shows, err := f.catalog.ListShows(ctx, movieID, " OSLO ")
	require.NoError(t, err)
	require.Len(t, shows, 1)

	created, err := f.catalog.CreateShow(ctx, ShowInput{
		MovieID: movieID, City: "Oslo", HallName: "Hall 3",
		StartsAt: time.Date(2026, 11, 1, 19, 0, 0, 0, time.UTC), BasePriceCents: 1200, SeatRows: 8, SeatCols: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "oslo", created.City)

	shows, err = f.catalog.ListShows(ctx, movieID, "oslo")
	require.NoError(t, err)
	assert.Len(t, shows, 2)

	// Moving a show to another city clears every listing of its movie.
	_, err = f.catalog.UpdateShow(ctx, created.ID, ShowUpdate{City: "Bergen", HallName: "Hall 3", StartsAt: created.StartsAt, BasePriceCents: 1200})
	require.NoError(t, err)
	shows, err = f.catalog.ListShows(ctx, movieID, "oslo")
	require.NoError(t, err)
	assert.Len(t, shows, 1)
	shows, err = f.catalog.ListShows(ctx, movieID, "bergen")
	require.NoError(t, err)
	assert.Len(t, shows, 1)

	require.NoError(t, f.catalog.DeactivateShow(ctx, showID))
	_, err = f.catalog.GetShow(ctx, showID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	shows, err = f.catalog.ListShows(ctx, movieID, "oslo")
	require.NoError(t, err)
	assert.Empty(t, shows)
}

func TestCatalog_ShowValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.ListShows(ctx, 0, "oslo")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{"movie_id": "required"}, ve.Fields)

	_, err = f.catalog.CreateShow(ctx, ShowInput{MovieID: movieID, City: "oslo", HallName: "h", SeatRows: 0, SeatCols: 3})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.catalog.CreateShow(ctx, ShowInput{MovieID: 404, City: "oslo", HallName: "h", SeatRows: 1, SeatCols: 3})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.catalog.UpdateShow(ctx, showID, ShowUpdate{City: "", HallName: "h"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
