package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatlock-engine/internal/store"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	store store.Store
}

func NewHealthHandler(db Pinger, s store.Store) *HealthHandler {
	return &HealthHandler{db: db, store: s}
}

type HealthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	BestEffort bool   `json:"best_effort"`
	Database   string `json:"database"`
	Timestamp  string `json:"timestamp"`
}

// Check reports liveness plus the state of the durable and ephemeral
// stores. A running best-effort store is not a failure; an unreachable
// database is.
func (h *HealthHandler) Check(c echo.Context) error {
	resp := HealthResponse{
		Status:     "ok",
		Store:      h.store.Name(),
		BestEffort: h.store.BestEffort(),
		Database:   "ok",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	return c.JSON(status, resp)
}
