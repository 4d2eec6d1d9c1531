package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/middleware"
	"github.com/iliyamo/seatlock-engine/internal/model"
	"github.com/iliyamo/seatlock-engine/internal/notify"
	"github.com/iliyamo/seatlock-engine/internal/seatlock"
	"github.com/iliyamo/seatlock-engine/internal/service"
	"github.com/iliyamo/seatlock-engine/internal/store"
)

type mockBookings struct{ mock.Mock }

func (m *mockBookings) LockSeats(ctx context.Context, in service.LockInput) (seatlock.Grant, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(seatlock.Grant), args.Error(1)
}

func (m *mockBookings) ReleaseSeats(ctx context.Context, showID, userID uint64, seats []string) ([]string, error) {
	args := m.Called(ctx, showID, userID, seats)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockBookings) SeatMap(ctx context.Context, showID uint64) ([]model.SeatStatus, error) {
	args := m.Called(ctx, showID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SeatStatus), args.Error(1)
}

func (m *mockBookings) CreateBooking(ctx context.Context, in service.CreateBookingInput) (*model.Booking, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *mockBookings) GetBooking(ctx context.Context, id string, a model.Actor) (*model.Booking, error) {
	args := m.Called(ctx, id, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *mockBookings) ListUserBookings(ctx context.Context, userID uint64) ([]model.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *mockBookings) CancelBooking(ctx context.Context, id string, a model.Actor) (*model.Booking, error) {
	args := m.Called(ctx, id, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *mockBookings) SettlePayment(ctx context.Context, id string, a model.Actor, outcome string) (*model.Booking, error) {
	args := m.Called(ctx, id, a, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) ListMovies(ctx context.Context) ([]model.Movie, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Movie), args.Error(1)
}

func (m *mockCatalog) GetMovie(ctx context.Context, id uint64) (*model.Movie, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Movie), args.Error(1)
}

func (m *mockCatalog) CreateMovie(ctx context.Context, in service.MovieInput) (*model.Movie, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Movie), args.Error(1)
}

func (m *mockCatalog) UpdateMovie(ctx context.Context, id uint64, in service.MovieInput) (*model.Movie, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Movie), args.Error(1)
}

func (m *mockCatalog) DeactivateMovie(ctx context.Context, id uint64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCatalog) GetShow(ctx context.Context, id uint64) (*model.Show, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Show), args.Error(1)
}

func (m *mockCatalog) ListShows(ctx context.Context, movieID uint64, city string) ([]model.Show, error) {
	args := m.Called(ctx, movieID, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Show), args.Error(1)
}

func (m *mockCatalog) CreateShow(ctx context.Context, in service.ShowInput) (*model.Show, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Show), args.Error(1)
}

func (m *mockCatalog) UpdateShow(ctx context.Context, id uint64, in service.ShowUpdate) (*model.Show, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Show), args.Error(1)
}

func (m *mockCatalog) DeactivateShow(ctx context.Context, id uint64) error {
	return m.Called(ctx, id).Error(0)
}

const testUser uint64 = 501

// asUser stands in for JWTAuth.
func asUser(id uint64, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(middleware.ContextUserID, id)
			c.Set(middleware.ContextRole, role)
			return next(c)
		}
	}
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func bookingEcho(svc BookingService) *echo.Echo {
	e := newTestEcho()
	h := NewBookingHandler(svc)
	who := asUser(testUser, model.RoleCustomer)
	e.GET("/v1/shows/:id/seats", h.SeatMap)
	e.POST("/v1/shows/:id/locks", h.LockSeats, who)
	e.DELETE("/v1/shows/:id/locks", h.ReleaseSeats, who)
	e.POST("/v1/bookings", h.CreateBooking, who)
	e.GET("/v1/my-bookings", h.ListMine, who)
	e.GET("/v1/bookings/:id", h.GetBooking, who)
	e.POST("/v1/bookings/:id/cancel", h.CancelBooking, who)
	e.POST("/v1/bookings/:id/payment", h.SettlePayment, who)
	e.POST("/v1/anon/shows/:id/locks", h.LockSeats)
	return e
}

func TestLockSeats(t *testing.T) {
	expires := time.Date(2026, 10, 15, 12, 5, 0, 0, time.UTC)

	t.Run("granted", func(t *testing.T) {
		svc := new(mockBookings)
		svc.On("LockSeats", mock.Anything, service.LockInput{ShowID: 1, UserID: testUser, Seats: []string{"A1", "A2"}}).
			Return(seatlock.Grant{ShowID: 1, Seats: []string{"A1", "A2"}, UserID: testUser, ExpiresAt: expires}, nil)

		rec := do(bookingEcho(svc), http.MethodPost, "/v1/shows/1/locks", `{"seats":["A1","A2"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"show_id":1,"seats":["A1","A2"],"expires_at":"2026-10-15T12:05:00Z"}`, rec.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("conflict lists seats", func(t *testing.T) {
		svc := new(mockBookings)
		svc.On("LockSeats", mock.Anything, mock.Anything).
			Return(seatlock.Grant{}, &apperr.ConflictError{Reason: "seats already locked", Seats: []string{"A2"}})

		rec := do(bookingEcho(svc), http.MethodPost, "/v1/shows/1/locks", `{"seats":["A2","A3"]}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":"seats already locked","seats":["A2"]}`, rec.Body.String())
	})

	t.Run("rate limited", func(t *testing.T) {
		svc := new(mockBookings)
		svc.On("LockSeats", mock.Anything, mock.Anything).
			Return(seatlock.Grant{}, &apperr.RateLimitError{Action: "lock", RetryAfter: time.Minute})

		rec := do(bookingEcho(svc), http.MethodPost, "/v1/shows/1/locks", `{"seats":["A1"]}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("store down", func(t *testing.T) {
		svc := new(mockBookings)
		svc.On("LockSeats", mock.Anything, mock.Anything).
			Return(seatlock.Grant{}, apperr.Unavailable("ephemeral store", errors.New("dial tcp: refused")))

		rec := do(bookingEcho(svc), http.MethodPost, "/v1/shows/1/locks", `{"seats":["A1"]}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "refused")
	})

	t.Run("validation", func(t *testing.T) {
		svc := new(mockBookings)
		e := bookingEcho(svc)

		rec := do(e, http.MethodPost, "/v1/shows/1/locks", `{"seats":[]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Contains(t, body["fields"], "seats")

		rec = do(e, http.MethodPost, "/v1/shows/abc/locks", `{"seats":["A1"]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(e, http.MethodPost, "/v1/shows/1/locks", `{"seats":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "LockSeats", mock.Anything, mock.Anything)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := do(bookingEcho(new(mockBookings)), http.MethodPost, "/v1/anon/shows/1/locks", `{"seats":["A1"]}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestReleaseSeats(t *testing.T) {
	svc := new(mockBookings)
	svc.On("ReleaseSeats", mock.Anything, uint64(4), testUser, []string{"A1", "B2"}).Return([]string{"A1"}, nil)

	rec := do(bookingEcho(svc), http.MethodDelete, "/v1/shows/4/locks", `{"seats":["A1","B2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"released":["A1"]}`, rec.Body.String())
}

func TestSeatMap(t *testing.T) {
	svc := new(mockBookings)
	svc.On("SeatMap", mock.Anything, uint64(1)).Return([]model.SeatStatus{
		{Seat: "A1", Status: model.SeatBooked},
		{Seat: "A2", Status: model.SeatLocked, LockedBy: 7},
		{Seat: "A3", Status: model.SeatFree},
	}, nil)

	rec := do(bookingEcho(svc), http.MethodGet, "/v1/shows/1/seats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"show_id":1,"seats":[
		{"seat":"A1","status":"BOOKED"},
		{"seat":"A2","status":"LOCKED","locked_by":7},
		{"seat":"A3","status":"FREE"}]}`, rec.Body.String())
}

func TestCreateBooking(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(mockBookings)
		b := &model.Booking{ID: "b-1", ShowID: 1, UserID: testUser, Seats: []string{"A1"}, Status: model.BookingConfirmed, PaymentStatus: model.PaymentPending, TotalAmountCents: 1000}
		svc.On("CreateBooking", mock.Anything, service.CreateBookingInput{ShowID: 1, MovieID: 3, UserID: testUser, Seats: []string{"A1"}}).Return(b, nil)

		rec := do(bookingEcho(svc), http.MethodPost, "/v1/bookings", `{"show_id":1,"movie_id":3,"seats":["A1"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "CONFIRMED", body["status"])
		assert.Equal(t, "PENDING", body["payment_status"])
	})

	t.Run("seats not locked", func(t *testing.T) {
		svc := new(mockBookings)
		svc.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, &apperr.InvalidSeatsError{Seats: []string{"A2"}})

		rec := do(bookingEcho(svc), http.MethodPost, "/v1/bookings", `{"show_id":1,"seats":["A1","A2"]}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, []interface{}{"A2"}, decode(t, rec)["invalid_seats"])
	})

	t.Run("missing show", func(t *testing.T) {
		rec := do(bookingEcho(new(mockBookings)), http.MethodPost, "/v1/bookings", `{"seats":["A1"]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["fields"], "show_id")
	})

	t.Run("show gone", func(t *testing.T) {
		svc := new(mockBookings)
		svc.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, apperr.NotFound("show"))
		rec := do(bookingEcho(svc), http.MethodPost, "/v1/bookings", `{"show_id":9,"seats":["A1"]}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestBookingLifecycleRoutes(t *testing.T) {
	me := model.Actor{UserID: testUser, Role: model.RoleCustomer}

	svc := new(mockBookings)
	svc.On("GetBooking", mock.Anything, "b-2", me).Return(nil, apperr.NotFound("booking")).Once()
	svc.On("CancelBooking", mock.Anything, "b-3", me).Return(nil, apperr.Invalid("paid bookings cannot be cancelled")).Once()
	svc.On("SettlePayment", mock.Anything, "b-4", me, "SUCCESS").Return(nil, &apperr.ConflictError{Reason: "payment already settled as SUCCESS"}).Once()
	svc.On("ListUserBookings", mock.Anything, testUser).Return([]model.Booking{}, nil).Once()
	e := bookingEcho(svc)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/bookings/b-2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/bookings/b-3/cancel", "").Code)

	rec := do(e, http.MethodPost, "/v1/bookings/b-4/payment", `{"status":"SUCCESS"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"payment already settled as SUCCESS"}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/v1/bookings/b-4/payment", `{"status":"REFUNDED"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/v1/my-bookings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestForbiddenMapsTo403(t *testing.T) {
	svc := new(mockBookings)
	svc.On("GetBooking", mock.Anything, "b-1", mock.Anything).Return(nil, apperr.ErrForbidden)
	assert.Equal(t, http.StatusForbidden, do(bookingEcho(svc), http.MethodGet, "/v1/bookings/b-1", "").Code)
}

func catalogEcho(svc CatalogService) *echo.Echo {
	e := newTestEcho()
	h := NewCatalogHandler(svc)
	e.GET("/v1/movies", h.ListMovies)
	e.GET("/v1/shows", h.ListShows)
	e.GET("/v1/shows/:id", h.GetShow)
	e.POST("/v1/admin/movies", h.CreateMovie)
	e.POST("/v1/admin/shows", h.CreateShow)
	e.DELETE("/v1/admin/shows/:id", h.DeactivateShow)
	return e
}

func TestCatalogHandlers(t *testing.T) {
	show := &model.Show{ID: 1, MovieID: 3, City: "oslo", HallName: "Hall 1", SeatRows: 5, SeatCols: 8, IsActive: true}

	svc := new(mockCatalog)
	svc.On("GetShow", mock.Anything, uint64(1)).Return(show, nil)
	svc.On("ListShows", mock.Anything, uint64(3), "Oslo").Return([]model.Show{*show}, nil)
	svc.On("ListMovies", mock.Anything).Return([]model.Movie{{ID: 3, Title: "Heat", DurationMin: 170, IsActive: true}}, nil)
	svc.On("CreateMovie", mock.Anything, service.MovieInput{Title: "Ronin", DurationMin: 122}).Return(&model.Movie{ID: 11, Title: "Ronin", DurationMin: 122, IsActive: true}, nil)
	svc.On("DeactivateShow", mock.Anything, uint64(1)).Return(nil)
	e := catalogEcho(svc)

	rec := do(e, http.MethodGet, "/v1/shows/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(40), decode(t, rec)["capacity"])

	rec = do(e, http.MethodGet, "/v1/shows?movie_id=3&city=Oslo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/v1/shows?movie_id=x&city=oslo", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/v1/movies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/v1/admin/movies", `{"title":"Ronin","duration_min":122}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(e, http.MethodPost, "/v1/admin/movies", `{"title":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "duration_min")

	rec = do(e, http.MethodPost, "/v1/admin/shows", `{"movie_id":3,"city":"oslo","hall_name":"h","starts_at":"2026-11-01T19:00:00Z","seat_rows":0,"seat_cols":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodDelete, "/v1/admin/shows/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newTestEcho()
	e.GET("/healthz", NewHealthHandler(nil, store.NewMemory()).Check)

	rec := do(e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["best_effort"])
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("connection refused") }

func TestHealth_DatabaseDown(t *testing.T) {
	e := newTestEcho()
	e.GET("/healthz", NewHealthHandler(downDB{}, store.NewMemory()).Check)

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventsStream(t *testing.T) {
	show := &model.Show{ID: 1, SeatRows: 2, SeatCols: 2, IsActive: true}
	catalog := new(mockCatalog)
	catalog.On("GetShow", mock.Anything, uint64(1)).Return(show, nil)
	catalog.On("GetShow", mock.Anything, uint64(2)).Return(nil, apperr.NotFound("show"))

	hub := notify.NewHub(4, metrics.Discard())
	e := newTestEcho()
	e.GET("/v1/shows/:id/events", NewEventsHandler(catalog, hub, nil).Stream)
	srv := httptest.NewServer(e)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/v1/shows/2/events", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/v1/shows/1/events", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Viewers(1) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), 1, notify.Event{Type: notify.SeatsLocked, ShowID: 1, Seats: []string{"A1"}, UserID: 5}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.SeatsLocked, ev.Type)
	assert.Equal(t, []string{"A1"}, ev.Seats)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Viewers(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}
