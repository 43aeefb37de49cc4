package handler

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/middleware"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// HealthHandler exposes a "system" endpoint that uptime monitors can use to
// verify the service is alive and its folders are reachable.
type HealthHandler struct {
	Handler
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	return &HealthHandler{
		Handler: NewHandler(s),
	}
}

// CheckHealth returns system health status and dependency checks.
//
// Response includes:
// - overall status (healthy/unhealthy)
// - timestamp (UTC)
// - environment (from config)
// - checks map (base_folder, data_dir, sensors)
//
// It returns:
// - 200 OK if the folders are reachable
// - 503 Service Unavailable otherwise
//
// The sensor log is reported but never fails the check: the reviewer is
// usable without one.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"checks":      make(map[string]interface{}),
	}

	checks := response["checks"].(map[string]interface{})
	isHealthy := true

	current := h.server.Settings.Current()
	dirs := []struct{ check, dir string }{
		{"base_folder", path.Join("/", current.BaseFolder)},
		{"data_dir", server.DataPath(h.server.Config, "")},
	}
	for _, d := range dirs {
		if !h.checkDir(checks, &logger, d.check, d.dir) {
			isHealthy = false
		}
	}

	// ---------------- Sensor log ---------------------------------------------
	status := h.server.Sensors.Status()
	sensors := map[string]interface{}{
		"status":  "loaded",
		"records": status.Records,
		"loading": status.Loading,
	}
	switch {
	case status.LastError != "":
		sensors["status"] = "error"
		sensors["error"] = status.LastError
		logger.Warn().Str("error", status.LastError).Msg("sensor log failed to load")
	case status.Records == 0:
		sensors["status"] = "empty"
	}
	checks["sensors"] = sensors

	// ---------------- Overall status + response ------------------------------
	if !isHealthy {
		response["status"] = "unhealthy"

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")

		h.recordHealthError(map[string]interface{}{
			"check_type":        "overall",
			"operation":         "health_check",
			"error_type":        "overall_unhealthy",
			"total_duration_ms": time.Since(start).Milliseconds(),
		})

		return c.JSON(http.StatusServiceUnavailable, response)
	}

	logger.Debug().
		Dur("total_duration", time.Since(start)).
		Msg("health check passed")

	if err := c.JSON(http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("failed to write JSON response")

		h.recordHealthError(map[string]interface{}{
			"check_type":    "response",
			"operation":     "health_check",
			"error_type":    "json_response_error",
			"error_message": err.Error(),
		})

		return fmt.Errorf("failed to write JSON response: %w", err)
	}

	return nil
}

// checkDir stats dir on the rooted filesystem and records the result under check.
func (h *HealthHandler) checkDir(checks map[string]interface{}, logger *zerolog.Logger, check, dir string) bool {
	checkStart := time.Now()

	ok, err := afero.DirExists(h.server.FS, dir)
	if err == nil && !ok {
		err = fmt.Errorf("%s is not a directory", dir)
	}
	if err != nil {
		checks[check] = map[string]interface{}{
			"status":        "unhealthy",
			"path":          dir,
			"response_time": time.Since(checkStart).String(),
			"error":         err.Error(),
		}

		logger.Error().
			Err(err).
			Str("check", check).
			Dur("response_time", time.Since(checkStart)).
			Msg("folder health check failed")

		h.recordHealthError(map[string]interface{}{
			"check_type":       check,
			"operation":        "health_check",
			"error_type":       check + "_unhealthy",
			"response_time_ms": time.Since(checkStart).Milliseconds(),
			"error_message":    err.Error(),
		})
		return false
	}

	checks[check] = map[string]interface{}{
		"status":        "healthy",
		"path":          dir,
		"response_time": time.Since(checkStart).String(),
	}
	return true
}

func (h *HealthHandler) recordHealthError(attrs map[string]interface{}) {
	if app := h.server.LoggerService.GetApplication(); app != nil {
		app.RecordCustomEvent("HealthCheckError", attrs)
	}
}
