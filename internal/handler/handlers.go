// Package handler is the first layer. The first entry point
// for business logic after the router.
//
// It parses requests, handles input validation using the
// validation package, and calls the appropriate service layer.
// Pages and JSON endpoints go through the same pipeline in base.go.
package handler

import (
	"github.com/deppfellow/cluster-reviewer/internal/lib/page"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
)

// Handlers is a container that groups all HTTP handlers.
//
// It keeps router setup clean: the router receives one value instead of
// one argument per handler.
type Handlers struct {
	Health      *HealthHandler
	Pages       *PageHandler
	Clusters    *ClusterHandler
	Review      *ReviewHandler
	Annotations *AnnotationHandler
	Sensors     *SensorHandler
	Settings    *SettingsHandler
	Events      *EventsHandler
	Images      *ImageHandler

	// Renderer is installed as the echo renderer by the router.
	Renderer *page.Renderer
}

// NewHandlers constructs the handler container. It fails only when the
// embedded page templates do not parse.
func NewHandlers(s *server.Server, services *service.Services) (*Handlers, error) {
	renderer, err := page.NewRenderer()
	if err != nil {
		return nil, err
	}

	return &Handlers{
		Health:      NewHealthHandler(s),
		Pages:       NewPageHandler(s, services),
		Clusters:    NewClusterHandler(s, services.Clusters),
		Review:      NewReviewHandler(s, services.Review),
		Annotations: NewAnnotationHandler(s, services.Annotations),
		Sensors:     NewSensorHandler(s, services.Sensors),
		Settings:    NewSettingsHandler(s, services.Settings),
		Events:      NewEventsHandler(s),
		Images:      NewImageHandler(s),
		Renderer:    renderer,
	}, nil
}
