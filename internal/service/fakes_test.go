package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seatlock-engine/internal/cache"
	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/model"
	"github.com/iliyamo/seatlock-engine/internal/notify"
	"github.com/iliyamo/seatlock-engine/internal/queue"
	"github.com/iliyamo/seatlock-engine/internal/ratelimit"
	"github.com/iliyamo/seatlock-engine/internal/repository"
	"github.com/iliyamo/seatlock-engine/internal/seatlock"
	"github.com/iliyamo/seatlock-engine/internal/store"
)

// fakeBookings mimics the MySQL schema: a (show, seat) pair can belong to at
// most one live booking.
type fakeBookings struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	live     map[uint64]map[string]string // show -> seat -> booking id
	order    []string
	listHits int

	// beforeCreate runs once, outside the lock, before the next insert.
	beforeCreate func()
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{bookings: map[string]*model.Booking{}, live: map[uint64]map[string]string{}}
}

func (f *fakeBookings) Create(_ context.Context, b *model.Booking) error {
	if hook := f.takeHook(); hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	seats := f.live[b.ShowID]
	for _, s := range b.Seats {
		if _, taken := seats[s]; taken {
			return repository.ErrSeatTaken
		}
	}
	if seats == nil {
		seats = map[string]string{}
		f.live[b.ShowID] = seats
	}
	for _, s := range b.Seats {
		seats[s] = b.ID
	}
	cp := *b
	cp.Seats = append([]string(nil), b.Seats...)
	f.bookings[b.ID] = &cp
	f.order = append(f.order, b.ID)
	return nil
}

func (f *fakeBookings) takeHook() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.beforeCreate
	f.beforeCreate = nil
	return h
}

func (f *fakeBookings) OccupiedSeats(_ context.Context, showID uint64, seats []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	if len(seats) == 0 {
		for s := range f.live[showID] {
			out = append(out, s)
		}
	} else {
		for _, s := range seats {
			if _, ok := f.live[showID][s]; ok {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeBookings) GetByID(_ context.Context, id string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) ListByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	out := []model.Booking{}
	for i := len(f.order) - 1; i >= 0; i-- {
		if b := f.bookings[f.order[i]]; b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookings) free(b *model.Booking) {
	for _, s := range b.Seats {
		if f.live[b.ShowID][s] == b.ID {
			delete(f.live[b.ShowID], s)
		}
	}
}

func (f *fakeBookings) Cancel(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != model.BookingConfirmed || b.PaymentStatus == model.PaymentSuccess {
		return repository.ErrStateChanged
	}
	b.Status = model.BookingCancelled
	b.CancelledAt = &at
	f.free(b)
	return nil
}

func (f *fakeBookings) SettleSuccess(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != model.BookingConfirmed || b.PaymentStatus != model.PaymentPending {
		return repository.ErrStateChanged
	}
	b.PaymentStatus = model.PaymentSuccess
	return nil
}

func (f *fakeBookings) SettleFailed(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != model.BookingConfirmed || b.PaymentStatus != model.PaymentPending {
		return repository.ErrStateChanged
	}
	b.PaymentStatus = model.PaymentFailed
	b.Status = model.BookingCancelled
	b.CancelledAt = &at
	f.free(b)
	return nil
}

type fakeShows struct {
	mu     sync.Mutex
	shows  map[uint64]*model.Show
	nextID uint64
	gets   int
}

func newFakeShows(shows ...model.Show) *fakeShows {
	f := &fakeShows{shows: map[uint64]*model.Show{}, nextID: 100}
	for i := range shows {
		s := shows[i]
		f.shows[s.ID] = &s
	}
	return f
}

func (f *fakeShows) GetByID(_ context.Context, id uint64) (*model.Show, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	s, ok := f.shows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShows) ListByMovieCity(_ context.Context, movieID uint64, city string) ([]model.Show, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Show{}
	for _, s := range f.shows {
		if s.MovieID == movieID && s.City == city && s.IsActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeShows) Create(_ context.Context, s *model.Show) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.shows[s.ID] = &cp
	return nil
}

func (f *fakeShows) Update(_ context.Context, s *model.Show) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shows[s.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *s
	f.shows[s.ID] = &cp
	return nil
}

type fakeMovies struct {
	mu     sync.Mutex
	movies map[uint64]*model.Movie
	nextID uint64
	lists  int
}

func newFakeMovies(movies ...model.Movie) *fakeMovies {
	f := &fakeMovies{movies: map[uint64]*model.Movie{}, nextID: 10}
	for i := range movies {
		m := movies[i]
		f.movies[m.ID] = &m
	}
	return f
}

func (f *fakeMovies) GetByID(_ context.Context, id uint64) (*model.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMovies) ListActive(context.Context) ([]model.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	out := []model.Movie{}
	for _, m := range f.movies {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMovies) Create(_ context.Context, m *model.Movie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	cp := *m
	f.movies[m.ID] = &cp
	return nil
}

func (f *fakeMovies) Update(_ context.Context, m *model.Movie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.movies[m.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *m
	f.movies[m.ID] = &cp
	return nil
}

type recordedEvent struct {
	show uint64
	ev   notify.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingPublisher) Publish(_ context.Context, showID uint64, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{show: showID, ev: ev})
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.ev.Type
	}
	return out
}

type chanEvents struct {
	ch chan queue.BookingConfirmedEvent
}

func (c *chanEvents) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	c.ch <- ev
	return nil
}

const (
	showID  uint64 = 1
	movieID uint64 = 3
	u1      uint64 = 501
	u2      uint64 = 502
	admin   uint64 = 900
)

type fixture struct {
	svc      *BookingService
	catalog  *CatalogService
	bookings *fakeBookings
	shows    *fakeShows
	movies   *fakeMovies
	locks    *seatlock.Manager
	mr       *miniredis.Miniredis
	pub      *recordingPublisher
	events   *chanEvents
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f := newFixtureOn(t, store.NewRedis(rdb, time.Second))
	f.mr = mr
	return f
}

// newFixtureOn wires the service onto st. mr is left nil.
func newFixtureOn(t *testing.T, st store.Store) *fixture {
	t.Helper()
	f := &fixture{
		bookings: newFakeBookings(),
		shows: newFakeShows(
			model.Show{ID: showID, MovieID: movieID, City: "oslo", HallName: "Hall 1", BasePriceCents: 1000, SeatRows: 5, SeatCols: 5, IsActive: true},
			model.Show{ID: 2, MovieID: movieID, City: "oslo", HallName: "Hall 2", BasePriceCents: 800, SeatRows: 2, SeatCols: 2, IsActive: false},
		),
		movies:  newFakeMovies(model.Movie{ID: movieID, Title: "Heat", DurationMin: 170, IsActive: true}),
		pub:     &recordingPublisher{},
		events:  &chanEvents{ch: make(chan queue.BookingConfirmedEvent, 16)},
		metrics: metrics.Discard(),
	}
	c := cache.New(st, time.Minute, nil, f.metrics)
	f.locks = seatlock.NewManager(st, seatlock.DefaultTTL, f.pub, nil, f.metrics)
	f.catalog = NewCatalogService(f.movies, f.shows, c, nil)
	f.svc = NewBookingService(BookingDeps{
		Bookings:  f.bookings,
		Movies:    f.movies,
		Shows:     f.shows,
		Catalog:   f.catalog,
		Locks:     f.locks,
		Limiter:   ratelimit.New(st, nil, nil, f.metrics),
		Cache:     c,
		Publisher: f.pub,
		Events:    f.events,
		Metrics:   f.metrics,
	})
	return f
}
