package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
	"github.com/iliyamo/seatlock-engine/internal/cache"
	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/model"
	"github.com/iliyamo/seatlock-engine/internal/notify"
	"github.com/iliyamo/seatlock-engine/internal/queue"
	"github.com/iliyamo/seatlock-engine/internal/ratelimit"
	"github.com/iliyamo/seatlock-engine/internal/repository"
	"github.com/iliyamo/seatlock-engine/internal/seatlock"
)

// LockInput asks for a hold on seats of a show.
type LockInput struct {
	ShowID uint64
	UserID uint64
	Seats  []string
}

// CreateBookingInput asks to turn held seats into a booking. MovieID is
// optional; when set it must match the show's movie.
type CreateBookingInput struct {
	ShowID  uint64
	MovieID uint64
	UserID  uint64
	Seats   []string
}

// BookingDeps wires a BookingService.
type BookingDeps struct {
	Bookings  BookingRepository
	Movies    MovieRepository
	Shows     ShowRepository
	Catalog   *CatalogService
	Locks     *seatlock.Manager
	Limiter   *ratelimit.Limiter
	Cache     *cache.Cache
	Publisher notify.Publisher
	Events    BookingEvents
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// BookingService runs the lock, commit, cancel and settlement workflows.
type BookingService struct {
	bookings BookingRepository
	movies   MovieRepository
	shows    ShowRepository
	catalog  *CatalogService
	locks    *seatlock.Manager
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	pub      notify.Publisher
	events   BookingEvents
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string

	// publishTimeout bounds the detached broker publish after a commit.
	publishTimeout time.Duration
}

func NewBookingService(d BookingDeps) *BookingService {
	s := &BookingService{
		bookings:       d.Bookings,
		movies:         d.Movies,
		shows:          d.Shows,
		catalog:        d.Catalog,
		locks:          d.Locks,
		limiter:        d.Limiter,
		cache:          d.Cache,
		pub:            d.Publisher,
		events:         d.Events,
		log:            d.Log,
		metrics:        d.Metrics,
		now:            d.Now,
		newID:          d.NewID,
		publishTimeout: 5 * time.Second,
	}
	if s.pub == nil {
		s.pub = notify.Nop{}
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.With(zap.String("service", "booking"))
	if s.metrics == nil {
		s.metrics = metrics.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.catalog == nil {
		s.catalog = NewCatalogService(d.Movies, d.Shows, d.Cache, d.Log)
	}
	return s
}

// LockSeats places a TTL-bound hold on seats for the user. Seats already
// sold are reported as a conflict just like seats locked by someone else.
func (s *BookingService) LockSeats(ctx context.Context, in LockInput) (seatlock.Grant, error) {
	if in.ShowID == 0 || in.UserID == 0 {
		return seatlock.Grant{}, apperr.Invalid("show and user are required")
	}
	if len(in.Seats) == 0 {
		return seatlock.Grant{}, apperr.Invalid("at least one seat is required")
	}

	if d := s.limiter.Allow(ctx, ratelimit.ActionLock, ratelimit.LockSubject(in.UserID, in.ShowID)); !d.Allowed {
		return seatlock.Grant{}, &apperr.RateLimitError{Action: ratelimit.ActionLock, RetryAfter: d.RetryAfter}
	}

	show, err := s.catalog.GetShow(ctx, in.ShowID)
	if err != nil {
		return seatlock.Grant{}, err
	}
	seats, err := normalize(show, in.Seats)
	if err != nil {
		return seatlock.Grant{}, err
	}

	booked, err := s.bookings.OccupiedSeats(ctx, show.ID, seats)
	if err != nil {
		return seatlock.Grant{}, apperr.Unavailable("database", err)
	}
	if len(booked) > 0 {
		s.metrics.SeatLockAttempts.WithLabelValues("conflict").Inc()
		return seatlock.Grant{}, &apperr.ConflictError{Reason: "seats already booked", Seats: s.unavailable(ctx, show.ID, seats, booked)}
	}

	grant, err := s.locks.TryLock(ctx, show.ID, seats, in.UserID)
	if err != nil {
		return seatlock.Grant{}, err
	}
	s.log.Debug("seats locked",
		zap.Uint64("show_id", show.ID), zap.Uint64("user_id", in.UserID),
		zap.Strings("seats", seats), zap.Bool("best_effort", grant.BestEffort))
	return grant, nil
}

// ReleaseSeats drops the caller's own locks among seats and returns the
// seats actually released. Locks held by others are left alone.
func (s *BookingService) ReleaseSeats(ctx context.Context, showID, userID uint64, seats []string) ([]string, error) {
	show, err := s.catalog.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	norm, err := normalize(show, seats)
	if err != nil {
		return nil, err
	}
	holders, err := s.locks.Holders(ctx, show.ID, norm)
	if err != nil {
		return nil, err
	}
	var own []string
	for _, seat := range norm {
		if l, ok := holders[seat]; ok && l.UserID == userID {
			own = append(own, seat)
		}
	}
	if len(own) == 0 {
		return []string{}, nil
	}
	if err := s.locks.Release(ctx, show.ID, own); err != nil {
		return nil, err
	}
	s.announce(ctx, notify.Event{Type: notify.SeatsReleased, ShowID: show.ID, Seats: own, UserID: userID, At: s.now().UTC()})
	return own, nil
}

// SeatMap reports every seat of the show as FREE, LOCKED or BOOKED. A seat
// that is both booked and locked is BOOKED.
func (s *BookingService) SeatMap(ctx context.Context, showID uint64) ([]model.SeatStatus, error) {
	show, err := s.catalog.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	booked, err := s.bookings.OccupiedSeats(ctx, show.ID, nil)
	if err != nil {
		return nil, apperr.Unavailable("database", err)
	}
	locks, err := s.locks.Inspect(ctx, show.ID)
	if err != nil {
		// The map is informational; TryLock still guards every seat.
		s.log.Warn("seat map without lock state", zap.Uint64("show_id", show.ID), zap.Error(err))
		locks = nil
	}

	isBooked := make(map[string]bool, len(booked))
	for _, seat := range booked {
		isBooked[seat] = true
	}
	layout := show.Layout()
	out := make([]model.SeatStatus, 0, len(layout))
	for _, seat := range layout {
		st := model.SeatStatus{Seat: seat, Status: model.SeatFree}
		if isBooked[seat] {
			st.Status = model.SeatBooked
		} else if l, ok := locks[seat]; ok {
			st.Status = model.SeatLocked
			st.LockedBy = l.UserID
		}
		out = append(out, st)
	}
	return out, nil
}

// CreateBooking commits seats the user holds locks on. The durable unique
// index decides races that slip past the locks, for example after a lock
// expired mid-commit or on the best-effort store.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	b, err := s.createBooking(ctx, in)
	s.metrics.BookingsTotal.WithLabelValues(bookingResult(err)).Inc()
	return b, err
}

func (s *BookingService) createBooking(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	if in.ShowID == 0 || in.UserID == 0 {
		return nil, apperr.Invalid("show and user are required")
	}
	if len(in.Seats) == 0 {
		return nil, apperr.Invalid("at least one seat is required")
	}

	if d := s.limiter.Allow(ctx, ratelimit.ActionBooking, ratelimit.BookingSubject(in.UserID)); !d.Allowed {
		return nil, &apperr.RateLimitError{Action: ratelimit.ActionBooking, RetryAfter: d.RetryAfter}
	}

	// The commit reads the catalog from the database, not the cache.
	show, err := s.shows.GetByID(ctx, in.ShowID)
	if err != nil {
		return nil, dbErr(err, "show")
	}
	if !show.IsActive {
		return nil, apperr.NotFound("show")
	}
	if in.MovieID != 0 && in.MovieID != show.MovieID {
		return nil, apperr.Invalid("show %d does not screen movie %d", show.ID, in.MovieID)
	}
	movie, err := s.movies.GetByID(ctx, show.MovieID)
	if err != nil {
		return nil, dbErr(err, "movie")
	}
	if !movie.IsActive {
		return nil, apperr.NotFound("movie")
	}

	seats, err := normalize(show, in.Seats)
	if err != nil {
		return nil, err
	}

	holders, err := s.locks.Holders(ctx, show.ID, seats)
	if err != nil {
		return nil, err
	}
	var notHeld []string
	for _, seat := range seats {
		if l, ok := holders[seat]; !ok || l.UserID != in.UserID {
			notHeld = append(notHeld, seat)
		}
	}
	if len(notHeld) > 0 {
		return nil, &apperr.InvalidSeatsError{Seats: notHeld}
	}

	now := s.now().UTC()
	b := &model.Booking{
		ID:               s.newID(),
		ShowID:           show.ID,
		MovieID:          show.MovieID,
		UserID:           in.UserID,
		Seats:            seats,
		TotalAmountCents: uint64(show.BasePriceCents) * uint64(len(seats)),
		Status:           model.BookingConfirmed,
		PaymentStatus:    model.PaymentPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		if errors.Is(err, repository.ErrSeatTaken) {
			return nil, s.lostRace(ctx, show.ID, seats)
		}
		return nil, apperr.Unavailable("database", err)
	}

	if err := s.locks.Release(ctx, show.ID, seats); err != nil {
		// Committed seats are guarded by the unique index; the locks will
		// expire on their own.
		s.log.Warn("locks not released after commit", zap.String("booking_id", b.ID), zap.Error(err))
	}
	s.cache.Invalidate(ctx, cache.UserBookingsKey(in.UserID))
	s.announce(ctx, notify.Event{Type: notify.SeatsBooked, ShowID: show.ID, Seats: seats, UserID: in.UserID, At: now})
	s.publishConfirmed(ctx, b, show, movie)

	s.log.Info("booking confirmed",
		zap.String("booking_id", b.ID), zap.Uint64("show_id", show.ID),
		zap.Uint64("user_id", in.UserID), zap.Strings("seats", seats))
	return b, nil
}

// lostRace builds the conflict for a commit rejected by the unique index,
// naming exactly the seats another booking now holds.
func (s *BookingService) lostRace(ctx context.Context, showID uint64, seats []string) error {
	taken, err := s.bookings.OccupiedSeats(ctx, showID, seats)
	if err != nil {
		s.log.Warn("could not resolve conflicting seats", zap.Uint64("show_id", showID), zap.Error(err))
		taken = nil
	}
	if len(taken) == 0 {
		// The winning booking was cancelled between our insert and the
		// re-query; the whole request is reported.
		taken = seats
	}
	return &apperr.ConflictError{Reason: "seats already booked", Seats: taken}
}

// unavailable merges booked seats with seats currently locked, in request
// order. Lock state is best-effort here: booked seats alone still make a
// correct conflict.
func (s *BookingService) unavailable(ctx context.Context, showID uint64, seats, booked []string) []string {
	held, err := s.locks.Holders(ctx, showID, seats)
	if err != nil {
		s.log.Warn("conflict without lock state", zap.Uint64("show_id", showID), zap.Error(err))
	}
	isBooked := make(map[string]bool, len(booked))
	for _, seat := range booked {
		isBooked[seat] = true
	}
	out := make([]string, 0, len(seats))
	for _, seat := range seats {
		if _, locked := held[seat]; isBooked[seat] || locked {
			out = append(out, seat)
		}
	}
	return out
}

// GetBooking returns a booking visible to actor.
func (s *BookingService) GetBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	b, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListUserBookings returns the user's bookings, newest first.
func (s *BookingService) ListUserBookings(ctx context.Context, userID uint64) ([]model.Booking, error) {
	bookings, err := cache.ReadThrough(ctx, s.cache, cache.UserBookingsKey(userID), 0, func(ctx context.Context) ([]model.Booking, error) {
		return s.bookings.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, apperr.Unavailable("database", err)
	}
	return bookings, nil
}

// CancelBooking cancels an unpaid booking and frees its seats.
func (s *BookingService) CancelBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	b, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if b.Cancelled() {
		return nil, apperr.Invalid("booking is already cancelled")
	}
	if b.Paid() {
		return nil, apperr.Invalid("paid bookings cannot be cancelled")
	}

	now := s.now().UTC()
	if err := s.bookings.Cancel(ctx, b.ID, now); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, &apperr.ConflictError{Reason: "booking changed concurrently"}
		}
		return nil, apperr.Unavailable("database", err)
	}
	b.Status = model.BookingCancelled
	b.CancelledAt = &now
	b.UpdatedAt = now

	s.afterSeatsFreed(ctx, b, now)
	return b, nil
}

// SettlePayment records the payment outcome of a booking. SUCCESS sweeps
// every remaining lock of the show; FAILED cancels the booking.
func (s *BookingService) SettlePayment(ctx context.Context, id string, actor model.Actor, outcome string) (*model.Booking, error) {
	outcome = strings.ToUpper(strings.TrimSpace(outcome))
	if outcome != model.PaymentSuccess && outcome != model.PaymentFailed {
		return nil, &apperr.ValidationError{Message: "invalid payment outcome", Fields: map[string]string{"status": "must be SUCCESS or FAILED"}}
	}
	b, err := s.loadOwned(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != model.PaymentPending {
		return nil, &apperr.ConflictError{Reason: fmt.Sprintf("payment already settled as %s", b.PaymentStatus)}
	}
	if b.Cancelled() {
		return nil, apperr.Invalid("booking is cancelled")
	}

	now := s.now().UTC()
	if outcome == model.PaymentSuccess {
		err = s.bookings.SettleSuccess(ctx, b.ID, now)
	} else {
		err = s.bookings.SettleFailed(ctx, b.ID, now)
	}
	if err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, &apperr.ConflictError{Reason: "booking changed concurrently"}
		}
		return nil, apperr.Unavailable("database", err)
	}
	b.PaymentStatus = outcome
	b.UpdatedAt = now

	if outcome == model.PaymentFailed {
		b.Status = model.BookingCancelled
		b.CancelledAt = &now
		s.afterSeatsFreed(ctx, b, now)
		return b, nil
	}

	if n, err := s.locks.ReleaseShow(ctx, b.ShowID); err != nil {
		s.log.Warn("settlement lock sweep failed", zap.Uint64("show_id", b.ShowID), zap.Error(err))
	} else {
		s.log.Info("settlement swept show locks", zap.Uint64("show_id", b.ShowID), zap.Int("released", n))
	}
	s.cache.Invalidate(ctx, cache.UserBookingsKey(b.UserID))
	s.announce(ctx, notify.Event{Type: notify.SeatsClearedAfterSettlement, ShowID: b.ShowID, At: now})
	return b, nil
}

func (s *BookingService) afterSeatsFreed(ctx context.Context, b *model.Booking, now time.Time) {
	if err := s.locks.Release(ctx, b.ShowID, b.Seats); err != nil {
		s.log.Warn("lingering locks not released", zap.String("booking_id", b.ID), zap.Error(err))
	}
	s.cache.Invalidate(ctx, cache.UserBookingsKey(b.UserID))
	s.announce(ctx, notify.Event{Type: notify.SeatsReleased, ShowID: b.ShowID, Seats: b.Seats, UserID: b.UserID, At: now})
}

func (s *BookingService) loadOwned(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("booking")
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, dbErr(err, "booking")
	}
	if b.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, fmt.Errorf("booking %s: %w", id, apperr.ErrForbidden)
	}
	return b, nil
}

func (s *BookingService) announce(ctx context.Context, ev notify.Event) {
	if err := s.pub.Publish(ctx, ev.ShowID, ev); err != nil {
		s.metrics.NotificationsDropped.Inc()
		s.log.Warn("seat event not delivered", zap.String("type", ev.Type), zap.Uint64("show_id", ev.ShowID), zap.Error(err))
	}
}

// publishConfirmed hands the booking to the broker without holding up the
// response. The request context may end first, so the publish runs on a
// detached, bounded context.
func (s *BookingService) publishConfirmed(ctx context.Context, b *model.Booking, show *model.Show, movie *model.Movie) {
	ev := queue.BookingConfirmedEvent{
		BookingID:        b.ID,
		UserID:           b.UserID,
		ShowID:           b.ShowID,
		MovieID:          b.MovieID,
		MovieTitle:       movie.Title,
		City:             show.City,
		HallName:         show.HallName,
		StartsAt:         show.StartsAt.UTC().Format(time.RFC3339),
		SeatLabels:       b.Seats,
		TotalAmountCents: b.TotalAmountCents,
		ConfirmedAt:      b.CreatedAt.Format(time.RFC3339),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	go func() {
		defer cancel()
		if err := s.events.PublishBookingConfirmed(pctx, ev); err != nil {
			s.log.Warn("booking.confirmed not published", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}()
}

func normalize(show *model.Show, labels []string) ([]string, error) {
	seats, invalid := show.NormalizeSeats(labels)
	if len(invalid) > 0 {
		return nil, &apperr.ValidationError{
			Message: "unknown seats",
			Fields:  map[string]string{"seats": "not in the show layout: " + strings.Join(invalid, ",")},
		}
	}
	if len(seats) == 0 {
		return nil, apperr.Invalid("at least one seat is required")
	}
	return seats, nil
}

func bookingResult(err error) string {
	var invalid *apperr.InvalidSeatsError
	switch {
	case err == nil:
		return "confirmed"
	case errors.As(err, &invalid):
		return "invalid_seats"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	case errors.Is(err, apperr.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}
