// Package handler exposes the catalog and booking workflows over HTTP and
// streams seat events over WebSocket.
package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
	"github.com/iliyamo/seatlock-engine/internal/middleware"
	"github.com/iliyamo/seatlock-engine/internal/model"
	"github.com/iliyamo/seatlock-engine/internal/seatlock"
	"github.com/iliyamo/seatlock-engine/internal/service"
)

// CatalogService is the part of service.CatalogService the handlers use.
type CatalogService interface {
	ListMovies(ctx context.Context) ([]model.Movie, error)
	GetMovie(ctx context.Context, id uint64) (*model.Movie, error)
	CreateMovie(ctx context.Context, in service.MovieInput) (*model.Movie, error)
	UpdateMovie(ctx context.Context, id uint64, in service.MovieInput) (*model.Movie, error)
	DeactivateMovie(ctx context.Context, id uint64) error
	GetShow(ctx context.Context, id uint64) (*model.Show, error)
	ListShows(ctx context.Context, movieID uint64, city string) ([]model.Show, error)
	CreateShow(ctx context.Context, in service.ShowInput) (*model.Show, error)
	UpdateShow(ctx context.Context, id uint64, in service.ShowUpdate) (*model.Show, error)
	DeactivateShow(ctx context.Context, id uint64) error
}

// BookingService is the part of service.BookingService the handlers use.
type BookingService interface {
	LockSeats(ctx context.Context, in service.LockInput) (seatlock.Grant, error)
	ReleaseSeats(ctx context.Context, showID, userID uint64, seats []string) ([]string, error)
	SeatMap(ctx context.Context, showID uint64) ([]model.SeatStatus, error)
	CreateBooking(ctx context.Context, in service.CreateBookingInput) (*model.Booking, error)
	GetBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
	ListUserBookings(ctx context.Context, userID uint64) ([]model.Booking, error)
	CancelBooking(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
	SettlePayment(ctx context.Context, id string, actor model.Actor, outcome string) (*model.Booking, error)
}

// ErrorHandler renders application errors as JSON with the matching status.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.Int("status", status),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err))
		}
		var rl *apperr.RateLimitError
		if errors.As(err, &rl) {
			secs := int(math.Ceil(rl.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("error response not sent", zap.Error(err))
		}
	}
}

func render(err error) (int, echo.Map) {
	var (
		he      *echo.HTTPError
		invalid *apperr.ValidationError
		seats   *apperr.InvalidSeatsError
		clash   *apperr.ConflictError
	)
	switch {
	case errors.As(err, &he):
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, echo.Map{"error": msg}
	case errors.As(err, &invalid):
		body := echo.Map{"error": invalid.Message}
		if len(invalid.Fields) > 0 {
			body["fields"] = invalid.Fields
		}
		return http.StatusBadRequest, body
	case errors.As(err, &seats):
		return http.StatusConflict, echo.Map{"error": "seats not locked by you", "invalid_seats": seats.Seats}
	case errors.As(err, &clash):
		body := echo.Map{"error": clash.Reason}
		if len(clash.Seats) > 0 {
			body["seats"] = clash.Seats
		}
		return http.StatusConflict, body
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, echo.Map{"error": err.Error()}
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, echo.Map{"error": "forbidden"}
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests, echo.Map{"error": "too many requests"}
	case errors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, echo.Map{"error": "internal server error"}
	}
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("invalid %s", name)
	}
	return id, nil
}

func actor(c echo.Context) (model.Actor, error) {
	a, ok := middleware.Actor(c)
	if !ok {
		return model.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return a, nil
}

// bind decodes the body into dst and runs the echo validator on it.
func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Invalid("invalid request body")
	}
	return c.Validate(dst)
}
