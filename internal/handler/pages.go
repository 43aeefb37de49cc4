package handler

import (
	"errors"
	"slices"

	"github.com/deppfellow/cluster-reviewer/internal/fserr"
	"github.com/deppfellow/cluster-reviewer/internal/lib/page"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/labstack/echo/v4"
)

// ClusterPage is the model of the single cluster page.
type ClusterPage struct {
	Cluster service.ClusterView

	// Targets are the clusters images can be moved to.
	Targets      []string
	ActionParams settings.ActionParams
	Annotated    bool
}

// PageHandler renders the HTML pages. The JSON endpoints they call live in
// the other handlers.
type PageHandler struct {
	Handler
	services *service.Services
}

func NewPageHandler(s *server.Server, services *service.Services) *PageHandler {
	return &PageHandler{
		Handler:  NewHandler(s),
		services: services,
	}
}

func (h *PageHandler) Home(c echo.Context, _ *EmptyRequest) (Page, error) {
	overview, err := h.services.Clusters.Overview()
	if err != nil {
		return Page{}, err
	}
	return Page{Template: page.Home, View: h.view("Clusters", "home", overview)}, nil
}

func (h *PageHandler) Cluster(c echo.Context, req *ClusterNameParam) (Page, error) {
	view, err := h.services.Clusters.View(req.Name)
	if err != nil {
		return Page{}, err
	}
	names, err := h.services.Clusters.Names()
	if err != nil {
		return Page{}, err
	}
	annotated, err := h.services.Annotations.Annotated(req.Name)
	if err != nil {
		return Page{}, err
	}

	model := ClusterPage{
		Cluster:      view,
		Targets:      slices.DeleteFunc(names, func(n string) bool { return n == req.Name }),
		ActionParams: h.server.Settings.Current().ActionParams,
		Annotated:    annotated,
	}
	return Page{Template: page.Cluster, View: h.view(page.Label(req.Name), "home", model)}, nil
}

// Review shows the next cluster without a description, or the done page.
func (h *PageHandler) Review(c echo.Context, _ *EmptyRequest) (Page, error) {
	state, err := h.services.Review.State()
	if err != nil {
		return Page{}, err
	}
	if state.Cluster == nil {
		return Page{Template: page.Done, View: h.view("Review complete", "review", state)}, nil
	}
	return Page{Template: page.Review, View: h.view("Review", "review", state)}, nil
}

func (h *PageHandler) Merge(c echo.Context, _ *EmptyRequest) (Page, error) {
	stats, err := h.services.Clusters.AllStats()
	if err != nil {
		return Page{}, err
	}
	return Page{Template: page.Merge, View: h.view("Merge clusters", "merge", stats)}, nil
}

func (h *PageHandler) Settings(c echo.Context, _ *EmptyRequest) (Page, error) {
	view, err := h.services.Settings.View()
	if err != nil {
		return Page{}, err
	}
	return Page{Template: page.Settings, View: h.view("Settings", "settings", view)}, nil
}

// Annotations sends the browser to the settings page while annotations
// are switched off.
func (h *PageHandler) Annotations(c echo.Context, _ *EmptyRequest) (Page, error) {
	view, err := h.services.Annotations.View()
	if errors.Is(err, fserr.ErrDisabled) {
		return Page{Redirect: "/settings"}, nil
	}
	if err != nil {
		return Page{}, err
	}
	return Page{Template: page.Annotations, View: h.view("Annotations", "annotations", view)}, nil
}

func (h *PageHandler) Restart(c echo.Context, _ *EmptyRequest) (Page, error) {
	return Page{Template: page.Restart, View: h.view("Restarting", "", nil)}, nil
}
