package handler

import (
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/labstack/echo/v4"
)

type SensorMatchResponse struct {
	Results []service.SensorMatch `json:"results"`
}

type SensorReloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// SensorHandler serves the nearest-timestamp lookup and the sensor log
// status.
type SensorHandler struct {
	Handler
	sensors *service.SensorService
}

func NewSensorHandler(s *server.Server, sensors *service.SensorService) *SensorHandler {
	return &SensorHandler{
		Handler: NewHandler(s),
		sensors: sensors,
	}
}

func (h *SensorHandler) Match(c echo.Context, req *SensorMatchRequest) (SensorMatchResponse, error) {
	results, err := h.sensors.Match(req.Filenames)
	if err != nil {
		return SensorMatchResponse{}, err
	}
	return SensorMatchResponse{Results: results}, nil
}

func (h *SensorHandler) Status(c echo.Context, _ *EmptyRequest) (timeseries.Status, error) {
	return h.sensors.Status(), nil
}

// Reload answers 202: the reload runs in the background and its outcome
// is pushed on the event hub.
func (h *SensorHandler) Reload(c echo.Context, req *SensorReloadRequest) (SensorReloadResponse, error) {
	if err := h.sensors.Reload(req.Reason); err != nil {
		return SensorReloadResponse{}, err
	}
	return SensorReloadResponse{Success: true, Message: "Sensor reload queued", Reason: req.Reason}, nil
}
