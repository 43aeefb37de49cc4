package router

import (
	"net/http"

	"github.com/deppfellow/cluster-reviewer/internal/handler"
	"github.com/deppfellow/cluster-reviewer/internal/lib/page"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers endpoints that are not part of the review
// workflow: the health check and the page assets.
func registerSystemRoutes(r *echo.Echo, h *handler.Handlers) {
	// Health status endpoint (used by monitors).
	r.GET("/status", h.Health.CheckHealth)

	// Stylesheet, script and placeholder image, embedded in the binary.
	assets := http.StripPrefix("/assets/", http.FileServer(http.FS(page.Assets())))
	r.GET("/assets/*", echo.WrapHandler(assets))
}
