package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatlock-engine/internal/handler"
	"github.com/iliyamo/seatlock-engine/internal/middleware"
	"github.com/iliyamo/seatlock-engine/internal/model"
)

// RegisterAdmin registers catalog management and booking oversight under
// /v1/admin. All routes require a valid JWT with the ADMIN role.
func RegisterAdmin(e *echo.Echo, c *handler.CatalogHandler, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Movies ----
	g.POST("/movies", c.CreateMovie)
	g.PUT("/movies/:id", c.UpdateMovie)
	g.DELETE("/movies/:id", c.DeactivateMovie)

	// ---- Shows ----
	g.POST("/shows", c.CreateShow)
	g.PUT("/shows/:id", c.UpdateShow)
	g.DELETE("/shows/:id", c.DeactivateShow)

	// ---- Bookings (any owner) ----
	g.GET("/bookings/:id", b.GetBooking)
	g.POST("/bookings/:id/cancel", b.CancelBooking)
}
