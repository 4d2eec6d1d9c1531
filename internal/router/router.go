// Package router wires the HTTP surface: middleware, handlers and routes.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/handler"
	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/middleware"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Health  *handler.HealthHandler
	Catalog *handler.CatalogHandler
	Booking *handler.BookingHandler
	Events  *handler.EventsHandler
}

// Options configures New.
type Options struct {
	JWTSecret string
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
}

// New builds the echo instance with every route registered.
func New(h Handlers, o Options) *echo.Echo {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Discard()
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(o.Log)

	e.Use(echomw.RequestID())
	e.Use(middleware.Prometheus(o.Metrics))
	e.Use(middleware.RequestLogger(o.Log))
	e.Use(echomw.Recover())

	e.GET("/healthz", h.Health.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))

	RegisterPublic(e, h)
	RegisterCustomer(e, h.Booking, o.JWTSecret)
	RegisterAdmin(e, h.Catalog, h.Booking, o.JWTSecret)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "route not found")
	})
	return e
}

// RegisterPublic registers the unauthenticated browse endpoints, including
// the seat map and the live seat event stream.
func RegisterPublic(e *echo.Echo, h Handlers) {
	e.GET("/v1/movies", h.Catalog.ListMovies)
	e.GET("/v1/movies/:id", h.Catalog.GetMovie)
	e.GET("/v1/shows", h.Catalog.ListShows)
	e.GET("/v1/shows/:id", h.Catalog.GetShow)
	e.GET("/v1/shows/:id/seats", h.Booking.SeatMap)
	e.GET("/v1/shows/:id/events", h.Events.Stream)
}
