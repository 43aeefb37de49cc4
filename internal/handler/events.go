package handler

import (
	"github.com/deppfellow/cluster-reviewer/internal/middleware"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/labstack/echo/v4"
)

// EventsHandler upgrades browser connections to the event websocket.
type EventsHandler struct {
	Handler
}

func NewEventsHandler(s *server.Server) *EventsHandler {
	return &EventsHandler{Handler: NewHandler(s)}
}

// Serve hands the connection to the hub. Echo must not write to the
// response afterwards, so upgrade failures are only logged.
func (h *EventsHandler) Serve(c echo.Context) error {
	middleware.GetLogger(c).Debug().
		Int("clients", h.server.Events.ClientCount()).
		Msg("websocket client connecting")

	return h.server.Events.ServeWS(c.Response(), c.Request())
}
