package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatlock-engine/internal/apperr"
	"github.com/iliyamo/seatlock-engine/internal/model"
	"github.com/iliyamo/seatlock-engine/internal/service"
)

// CatalogHandler serves the public movie and show listings and the admin
// catalog mutations.
type CatalogHandler struct {
	catalog CatalogService
}

func NewCatalogHandler(catalog CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

type movieRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	DurationMin uint32 `json:"duration_min" validate:"required,min=1,max=1000"`
}

type showRequest struct {
	MovieID        uint64    `json:"movie_id" validate:"required"`
	City           string    `json:"city" validate:"required,max=100"`
	HallName       string    `json:"hall_name" validate:"required,max=100"`
	StartsAt       time.Time `json:"starts_at" validate:"required"`
	BasePriceCents uint32    `json:"base_price_cents"`
	SeatRows       uint32    `json:"seat_rows" validate:"required,min=1,max=100"`
	SeatCols       uint32    `json:"seat_cols" validate:"required,min=1,max=100"`
}

type showUpdateRequest struct {
	City           string    `json:"city" validate:"required,max=100"`
	HallName       string    `json:"hall_name" validate:"required,max=100"`
	StartsAt       time.Time `json:"starts_at" validate:"required"`
	BasePriceCents uint32    `json:"base_price_cents"`
}

// ShowResponse adds the seat count to a show.
type ShowResponse struct {
	model.Show
	Capacity int `json:"capacity"`
}

func showResponse(s *model.Show) ShowResponse {
	return ShowResponse{Show: *s, Capacity: s.Capacity()}
}

// ListMovies handles GET /v1/movies.
func (h *CatalogHandler) ListMovies(c echo.Context) error {
	movies, err := h.catalog.ListMovies(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": movies})
}

// GetMovie handles GET /v1/movies/:id.
func (h *CatalogHandler) GetMovie(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.catalog.GetMovie(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// ListShows handles GET /v1/shows?movie_id=&city=.
func (h *CatalogHandler) ListShows(c echo.Context) error {
	var movieID uint64
	if raw := c.QueryParam("movie_id"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &apperr.ValidationError{Message: "invalid show query", Fields: map[string]string{"movie_id": "must be a positive integer"}}
		}
		movieID = n
	}
	shows, err := h.catalog.ListShows(c.Request().Context(), movieID, c.QueryParam("city"))
	if err != nil {
		return err
	}
	out := make([]ShowResponse, len(shows))
	for i := range shows {
		out[i] = showResponse(&shows[i])
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// GetShow handles GET /v1/shows/:id.
func (h *CatalogHandler) GetShow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	s, err := h.catalog.GetShow(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, showResponse(s))
}

// CreateMovie handles POST /v1/admin/movies.
func (h *CatalogHandler) CreateMovie(c echo.Context) error {
	var req movieRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := h.catalog.CreateMovie(c.Request().Context(), service.MovieInput{Title: req.Title, DurationMin: req.DurationMin})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

// UpdateMovie handles PUT /v1/admin/movies/:id.
func (h *CatalogHandler) UpdateMovie(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req movieRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := h.catalog.UpdateMovie(c.Request().Context(), id, service.MovieInput{Title: req.Title, DurationMin: req.DurationMin})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// DeactivateMovie handles DELETE /v1/admin/movies/:id.
func (h *CatalogHandler) DeactivateMovie(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.catalog.DeactivateMovie(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateShow handles POST /v1/admin/shows.
func (h *CatalogHandler) CreateShow(c echo.Context) error {
	var req showRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.catalog.CreateShow(c.Request().Context(), service.ShowInput{
		MovieID:        req.MovieID,
		City:           req.City,
		HallName:       req.HallName,
		StartsAt:       req.StartsAt,
		BasePriceCents: req.BasePriceCents,
		SeatRows:       req.SeatRows,
		SeatCols:       req.SeatCols,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, showResponse(s))
}

// UpdateShow handles PUT /v1/admin/shows/:id.
func (h *CatalogHandler) UpdateShow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req showUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.catalog.UpdateShow(c.Request().Context(), id, service.ShowUpdate{
		City:           req.City,
		HallName:       req.HallName,
		StartsAt:       req.StartsAt,
		BasePriceCents: req.BasePriceCents,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, showResponse(s))
}

// DeactivateShow handles DELETE /v1/admin/shows/:id.
func (h *CatalogHandler) DeactivateShow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.catalog.DeactivateShow(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
