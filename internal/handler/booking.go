package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatlock-engine/internal/service"
)

// BookingHandler serves seat locks, the seat map and the booking lifecycle.
type BookingHandler struct {
	bookings BookingService
}

func NewBookingHandler(bookings BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type seatsRequest struct {
	Seats []string `json:"seats" validate:"required,min=1,max=50,dive,required,max=8"`
}

type bookingRequest struct {
	ShowID  uint64   `json:"show_id" validate:"required"`
	MovieID uint64   `json:"movie_id"`
	Seats   []string `json:"seats" validate:"required,min=1,max=50,dive,required,max=8"`
}

type paymentRequest struct {
	Status string `json:"status" validate:"required,oneof=SUCCESS FAILED success failed"`
}

type lockResponse struct {
	ShowID     uint64   `json:"show_id"`
	Seats      []string `json:"seats"`
	ExpiresAt  string   `json:"expires_at"`
	BestEffort bool     `json:"best_effort,omitempty"`
}

// SeatMap handles GET /v1/shows/:id/seats.
func (h *BookingHandler) SeatMap(c echo.Context) error {
	showID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	seats, err := h.bookings.SeatMap(c.Request().Context(), showID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "seats": seats})
}

// LockSeats handles POST /v1/shows/:id/locks. All requested seats are
// locked or none; a 409 lists the seats that were unavailable.
func (h *BookingHandler) LockSeats(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	showID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req seatsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	g, err := h.bookings.LockSeats(c.Request().Context(), service.LockInput{ShowID: showID, UserID: a.UserID, Seats: req.Seats})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, lockResponse{
		ShowID:     g.ShowID,
		Seats:      g.Seats,
		ExpiresAt:  g.ExpiresAt.UTC().Format(time.RFC3339),
		BestEffort: g.BestEffort,
	})
}

// ReleaseSeats handles DELETE /v1/shows/:id/locks.
func (h *BookingHandler) ReleaseSeats(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	showID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req seatsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	released, err := h.bookings.ReleaseSeats(c.Request().Context(), showID, a.UserID, req.Seats)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// CreateBooking handles POST /v1/bookings.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req bookingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	b, err := h.bookings.CreateBooking(c.Request().Context(), service.CreateBookingInput{
		ShowID:  req.ShowID,
		MovieID: req.MovieID,
		UserID:  a.UserID,
		Seats:   req.Seats,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

// ListMine handles GET /v1/my-bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	list, err := h.bookings.ListUserBookings(c.Request().Context(), a.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// GetBooking handles GET /v1/bookings/:id.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	b, err := h.bookings.GetBooking(c.Request().Context(), c.Param("id"), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

// CancelBooking handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	b, err := h.bookings.CancelBooking(c.Request().Context(), c.Param("id"), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

// SettlePayment handles POST /v1/bookings/:id/payment with the outcome
// reported by the payment collaborator.
func (h *BookingHandler) SettlePayment(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	b, err := h.bookings.SettlePayment(c.Request().Context(), c.Param("id"), a, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}
