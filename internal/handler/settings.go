package handler

import (
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/labstack/echo/v4"
)

type SettingsResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Settings settings.Settings `json:"settings"`
}

type SettingsHandler struct {
	Handler
	settings *service.SettingsService
}

func NewSettingsHandler(s *server.Server, svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		Handler:  NewHandler(s),
		settings: svc,
	}
}

func (h *SettingsHandler) Get(c echo.Context, _ *EmptyRequest) (service.SettingsView, error) {
	return h.settings.View()
}

func (h *SettingsHandler) Save(c echo.Context, req *SaveSettingsRequest) (SettingsResponse, error) {
	saved, err := h.settings.Save(req.Settings)
	if err != nil {
		return SettingsResponse{}, err
	}
	return SettingsResponse{Success: true, Message: "Settings saved", Settings: saved}, nil
}

func (h *SettingsHandler) Reset(c echo.Context, _ *EmptyRequest) (SettingsResponse, error) {
	saved, err := h.settings.Reset()
	if err != nil {
		return SettingsResponse{}, err
	}
	return SettingsResponse{Success: true, Message: "Settings reset to defaults", Settings: saved}, nil
}

// Restart rereads the settings file and reloads the sensor log.
func (h *SettingsHandler) Restart(c echo.Context, _ *EmptyRequest) (MessageResponse, error) {
	if err := h.settings.Restart(); err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Success: true, Message: "Restarting"}, nil
}
