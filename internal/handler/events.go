package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// EventsHandler streams seat events of one show to WebSocket viewers.
// Delivery is at-most-once: a viewer that falls behind loses events and is
// expected to refetch the seat map.
type EventsHandler struct {
	catalog  CatalogService
	hub      *notify.Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewEventsHandler(catalog CatalogService, hub *notify.Hub, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventsHandler{
		catalog: catalog,
		hub:     hub,
		log:     log.With(zap.String("handler", "events")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Stream handles GET /v1/shows/:id/events.
func (h *EventsHandler) Stream(c echo.Context) error {
	showID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.catalog.GetShow(c.Request().Context(), showID); err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	sub := h.hub.Subscribe(showID)
	defer h.hub.Unsubscribe(sub)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
	return nil
}

// readPump discards client messages and keeps the read deadline fresh on
// pongs. It closes done when the connection goes away.
func (h *EventsHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventsHandler) writePump(conn *websocket.Conn, sub *notify.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("viewer write failed", zap.Uint64("show_id", sub.ShowID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
