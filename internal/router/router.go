// Package router initializes the HTTP router (using Echo).
//
// It registers the middlewares and defines the route groups,
// mapping specific paths to their corresponding handlers
package router

import (
	"net/http"

	"github.com/deppfellow/cluster-reviewer/internal/handler"
	"github.com/deppfellow/cluster-reviewer/internal/middleware"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/labstack/echo/v4"
)

// NewRouter builds the echo instance with the middleware chain and every route.
//
// Order matters: the request id comes first so every later log line and
// trace carries it, and the access check runs last so refused requests
// are still logged.
func NewRouter(s *server.Server, h *handler.Handlers) *echo.Echo {
	middlewares := middleware.NewMiddlewares(s)

	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.HTTPErrorHandler = middlewares.Global.GlobalErrorHandler
	router.Renderer = h.Renderer

	router.Use(
		middleware.RequestID(),
		middlewares.Tracing.NewRelicMiddleware(),
		middlewares.Tracing.EnhanceTracing(),
		middlewares.ContextEnhancer.EnhanceContext(),
		middlewares.Global.RequestLogger(),
		middlewares.Global.Recover(),
		middlewares.Global.Secure(),
		middlewares.Global.CORS(),
		middlewares.Access.LocalOnly,
	)

	registerSystemRoutes(router, h)
	registerPageRoutes(router, h)
	registerClusterRoutes(router, h)
	registerReviewRoutes(router, h)
	registerAnnotationRoutes(router, h)
	registerSensorRoutes(router, h, middlewares)
	registerSettingsRoutes(router, h)

	return router
}

func registerPageRoutes(r *echo.Echo, h *handler.Handlers) {
	p := h.Pages
	r.GET("/", handler.HandlePage(p.Handler, p.Home, &handler.EmptyRequest{}))
	r.GET("/cluster/:name", handler.HandlePage(p.Handler, p.Cluster, &handler.ClusterNameParam{}))
	r.GET("/review", handler.HandlePage(p.Handler, p.Review, &handler.EmptyRequest{}))
	r.GET("/merge", handler.HandlePage(p.Handler, p.Merge, &handler.EmptyRequest{}))
	r.GET("/settings", handler.HandlePage(p.Handler, p.Settings, &handler.EmptyRequest{}))
	r.GET("/annotations", handler.HandlePage(p.Handler, p.Annotations, &handler.EmptyRequest{}))
	r.GET("/restart", handler.HandlePage(p.Handler, p.Restart, &handler.EmptyRequest{}))
}

func registerClusterRoutes(r *echo.Echo, h *handler.Handlers) {
	cl := h.Clusters
	r.POST("/create-empty-cluster", handler.Handle(cl.Handler, cl.Create, http.StatusCreated, &handler.CreateClusterRequest{}))
	r.POST("/move-to-undefined", handler.Handle(cl.Handler, cl.MoveToUndefined, http.StatusOK, &handler.MoveToUndefinedRequest{}))
	r.POST("/move-multiple-to-undefined", handler.Handle(cl.Handler, cl.MoveManyToUndefined, http.StatusOK, &handler.MoveItemsRequest{}))
	r.POST("/move-cluster", handler.Handle(cl.Handler, cl.MoveClusterToUndefined, http.StatusOK, &handler.FolderRequest{}))
	r.POST("/move-to-cluster", handler.Handle(cl.Handler, cl.MoveToCluster, http.StatusOK, &handler.MoveToClusterRequest{}))
	r.POST("/move-to-new-cluster", handler.Handle(cl.Handler, cl.MoveToNewCluster, http.StatusOK, &handler.MoveToNewClusterRequest{}))
	r.POST("/merge-clusters", handler.Handle(cl.Handler, cl.Merge, http.StatusOK, &handler.MergeRequest{}))
	r.POST("/merge-multiple-clusters", handler.Handle(cl.Handler, cl.MergeMany, http.StatusOK, &handler.MergeManyRequest{}))

	api := r.Group("/api")
	api.GET("/cluster-previews", handler.Handle(cl.Handler, cl.Previews, http.StatusOK, &handler.EmptyRequest{}))
	api.GET("/cluster-previews-extended", handler.Handle(cl.Handler, cl.PreviewsExtended, http.StatusOK, &handler.EmptyRequest{}))
	api.GET("/cluster-info/:name", handler.Handle(cl.Handler, cl.Info, http.StatusOK, &handler.ClusterNameParam{}))
	api.GET("/next-cluster-number", handler.Handle(cl.Handler, cl.NextNumber, http.StatusOK, &handler.EmptyRequest{}))

	r.GET("/clusters/*", h.Images.Serve)
}

func registerReviewRoutes(r *echo.Echo, h *handler.Handlers) {
	rv := h.Review
	r.POST("/describe", handler.Handle(rv.Handler, rv.Describe, http.StatusOK, &handler.DescribeRequest{}))
	r.POST("/save-quick-description", handler.Handle(rv.Handler, rv.SaveQuickDescription, http.StatusOK, &handler.QuickDescriptionRequest{}))
	r.POST("/skip-cluster", handler.Handle(rv.Handler, rv.Skip, http.StatusOK, &handler.FolderRequest{}))
	r.POST("/unskip-cluster", handler.Handle(rv.Handler, rv.Unskip, http.StatusOK, &handler.FolderRequest{}))
	r.GET("/api/review", handler.Handle(rv.Handler, rv.State, http.StatusOK, &handler.EmptyRequest{}))
}

func registerAnnotationRoutes(r *echo.Echo, h *handler.Handlers) {
	an := h.Annotations
	r.POST("/annotate", handler.Handle(an.Handler, an.Annotate, http.StatusOK, &handler.AnnotateRequest{}))
	r.POST("/delete-annotation", handler.Handle(an.Handler, an.Delete, http.StatusOK, &handler.DeleteAnnotationRequest{}))
	r.POST("/clear-annotations", handler.Handle(an.Handler, an.Clear, http.StatusOK, &handler.EmptyRequest{}))
	r.GET("/annotations/download", handler.HandleFile(an.Handler, an.Download, http.StatusOK, &handler.EmptyRequest{}, "annotations.json", echo.MIMEApplicationJSON))
	r.GET("/api/annotations", handler.Handle(an.Handler, an.List, http.StatusOK, &handler.EmptyRequest{}))
}

func registerSensorRoutes(r *echo.Echo, h *handler.Handlers, m *middleware.Middlewares) {
	sn := h.Sensors
	sensors := r.Group("/api/sensors")
	sensors.GET("/match", handler.Handle(sn.Handler, sn.Match, http.StatusOK, &handler.SensorMatchRequest{}))
	sensors.POST("/match", handler.Handle(sn.Handler, sn.Match, http.StatusOK, &handler.SensorMatchRequest{}))
	sensors.GET("/status", handler.Handle(sn.Handler, sn.Status, http.StatusOK, &handler.EmptyRequest{}))
	sensors.POST("/reload", handler.Handle(sn.Handler, sn.Reload, http.StatusAccepted, &handler.SensorReloadRequest{}), m.RateLimit.SensorReload())

	r.GET("/ws/events", h.Events.Serve)
}

func registerSettingsRoutes(r *echo.Echo, h *handler.Handlers) {
	st := h.Settings
	r.GET("/api/settings", handler.Handle(st.Handler, st.Get, http.StatusOK, &handler.EmptyRequest{}))
	r.POST("/save-settings", handler.Handle(st.Handler, st.Save, http.StatusOK, &handler.SaveSettingsRequest{}))
	r.POST("/reset-settings", handler.Handle(st.Handler, st.Reset, http.StatusOK, &handler.EmptyRequest{}))
	r.POST("/restart", handler.Handle(st.Handler, st.Restart, http.StatusOK, &handler.EmptyRequest{}))
}
