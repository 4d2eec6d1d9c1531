package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatlock-engine/internal/handler"
	"github.com/iliyamo/seatlock-engine/internal/middleware"
	"github.com/iliyamo/seatlock-engine/internal/model"
)

// RegisterCustomer registers the seat lock and booking endpoints. Every
// route requires a valid JWT; admins may use them too.
func RegisterCustomer(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	auth := middleware.JWTAuth(jwtSecret)
	role := middleware.RequireRole(model.RoleCustomer, model.RoleAdmin)

	e.POST("/v1/shows/:id/locks", h.LockSeats, auth, role)
	e.DELETE("/v1/shows/:id/locks", h.ReleaseSeats, auth, role)

	e.POST("/v1/bookings", h.CreateBooking, auth, role)
	e.GET("/v1/my-bookings", h.ListMine, auth, role)
	e.GET("/v1/bookings/:id", h.GetBooking, auth, role)
	e.POST("/v1/bookings/:id/cancel", h.CancelBooking, auth, role)
	e.POST("/v1/bookings/:id/payment", h.SettlePayment, auth, role)
}
