package service

import (
	"fmt"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/rs/zerolog"
)

// ImageView is one image with the sensor row it was taken under.
type ImageView struct {
	Name string `json:"name"`
	URL  string `json:"url"`

	// Sensors is nil when no row is within tolerance or the name does not parse.
	Sensors     *timeseries.Match `json:"sensors,omitempty"`
	SensorError string            `json:"sensor_error,omitempty"`
}

type GroupView struct {
	Name   string      `json:"name"`
	Images []ImageView `json:"images"`
}

// ClusterView is everything the cluster and review pages show for one cluster.
type ClusterView struct {
	Name             string          `json:"name"`
	Mode             repository.Mode `json:"mode"`
	Groups           []GroupView     `json:"groups,omitempty"`
	Images           []ImageView     `json:"images,omitempty"`
	ItemCount        int             `json:"item_count"`
	QuickDescription string          `json:"quick_description,omitempty"`
	Description      string          `json:"description,omitempty"`

	// SensorsLoaded is false while no sensor log is loaded; the pages then
	// hide the sensor panels instead of showing "not available" everywhere.
	SensorsLoaded bool `json:"sensors_loaded"`
}

// Overview is the home page model.
type Overview struct {
	Settings   settings.Settings    `json:"settings"`
	BaseExists bool                 `json:"base_exists"`
	Clusters   []repository.Preview `json:"clusters"`
	Sensors    timeseries.Status    `json:"sensors"`
}

type NextClusterNumber struct {
	NextNumber    int    `json:"nextNumber"`
	SuggestedName string `json:"suggestedName"`
}

// ClusterService browses and reorganises clusters. Every change is
// announced on the event hub so open pages can refresh.
type ClusterService struct {
	clusters     *repository.ClusterRepository
	descriptions *repository.DescriptionRepository
	quick        *repository.QuickDescriptionRepository
	layout       repository.Layout
	sensors      *timeseries.Store
	events       events.Publisher
	logger       *zerolog.Logger
}

func NewClusterService(repos *repository.Repositories, layout repository.Layout, sensors *timeseries.Store, publisher events.Publisher, logger *zerolog.Logger) *ClusterService {
	return &ClusterService{
		clusters:     repos.Clusters,
		descriptions: repos.Descriptions,
		quick:        repos.QuickDescriptions,
		layout:       layout,
		sensors:      sensors,
		events:       publisher,
		logger:       logger,
	}
}

func (s *ClusterService) Overview() (Overview, error) {
	exists, err := s.clusters.BaseExists()
	if err != nil {
		return Overview{}, err
	}
	previews, err := s.clusters.Previews()
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Settings:   s.layout.Current(),
		BaseExists: exists,
		Clusters:   previews,
		Sensors:    s.sensors.Status(),
	}, nil
}

// View lists a cluster's images with their sensor rows and descriptions.
func (s *ClusterService) View(name string) (ClusterView, error) {
	contents, err := s.clusters.Contents(name)
	if err != nil {
		return ClusterView{}, err
	}

	matcher := s.sensors.Matcher()
	view := ClusterView{
		Name:          name,
		Mode:          contents.Mode,
		SensorsLoaded: matcher.Loaded(),
	}

	if contents.Mode == repository.ModeGroups {
		view.Groups = make([]GroupView, 0, len(contents.Groups))
		for _, g := range contents.Groups {
			gv := GroupView{Name: g.Name, Images: make([]ImageView, 0, len(g.Images))}
			for _, img := range g.Images {
				gv.Images = append(gv.Images, s.imageView(matcher, img, name, g.Name, img))
			}
			view.ItemCount += len(g.Images)
			view.Groups = append(view.Groups, gv)
		}
	} else {
		view.Images = make([]ImageView, 0, len(contents.Images))
		for _, img := range contents.Images {
			view.Images = append(view.Images, s.imageView(matcher, img, name, img))
		}
		view.ItemCount = len(contents.Images)
	}

	if view.QuickDescription, _, err = s.quick.Get(name); err != nil {
		s.logger.Warn().Err(err).Str("cluster", name).Msg("failed to read quick description")
	}
	if view.Description, _, err = s.descriptions.Get(name); err != nil {
		s.logger.Warn().Err(err).Str("cluster", name).Msg("failed to read description")
	}

	return view, nil
}

func (s *ClusterService) imageView(matcher timeseries.Matcher, name string, urlParts ...string) ImageView {
	v := ImageView{Name: name, URL: repository.ImageURL(urlParts...)}
	if !matcher.Loaded() {
		return v
	}

	m, ok, err := matcher.Match(name)
	switch {
	case err != nil:
		v.SensorError = err.Error()
	case ok:
		v.Sensors = &m
	}
	return v
}

// Names lists every cluster, including empty ones, sorted by number.
func (s *ClusterService) Names() ([]string, error) {
	return s.clusters.List()
}

func (s *ClusterService) Info(name string) (repository.ClusterStats, error) {
	return s.clusters.Stats(name)
}

// AllStats returns the stats of every cluster, for the merge page.
func (s *ClusterService) AllStats() ([]repository.ClusterStats, error) {
	names, err := s.clusters.List()
	if err != nil {
		return nil, err
	}
	out := make([]repository.ClusterStats, 0, len(names))
	for _, n := range names {
		st, err := s.clusters.Stats(n)
		if err != nil {
			s.logger.Warn().Err(err).Str("cluster", n).Msg("skipping cluster stats")
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *ClusterService) Previews() ([]repository.Preview, error) {
	return s.clusters.Previews()
}

func (s *ClusterService) PreviewsExtended() ([]repository.Preview, error) {
	return s.clusters.PreviewsExtended()
}

func (s *ClusterService) NextNumber() (NextClusterNumber, error) {
	n, err := s.clusters.NextNumber()
	if err != nil {
		return NextClusterNumber{}, err
	}
	return NextClusterNumber{NextNumber: n, SuggestedName: fmt.Sprintf("%s%d", repository.ClusterPrefix, n)}, nil
}

func (s *ClusterService) Create(name string) (string, error) {
	created, err := s.clusters.Create(name)
	if err != nil {
		return "", err
	}
	s.changed("create", map[string]any{"cluster": created})
	return created, nil
}

// MoveToCluster moves items into an existing cluster. The pseudo target
// repository.CreateNewCluster is refused; callers use MoveToNewCluster.
func (s *ClusterService) MoveToCluster(source, target string, items []string) (repository.MoveResult, error) {
	if target == repository.CreateNewCluster {
		return repository.MoveResult{}, errs.NewBadRequestError("Pick a cluster name to create a new cluster", true, nil, nil, nil)
	}
	res, err := s.clusters.MoveItems(source, target, items, false)
	if err != nil {
		return res, err
	}
	s.changed("move", res)
	return res, nil
}

// MoveToNewCluster creates newName and moves items into it. An existing
// cluster of that name is a conflict.
func (s *ClusterService) MoveToNewCluster(source, newName string, items []string) (repository.MoveResult, error) {
	exists, err := s.clusters.Exists(repository.SanitizeClusterName(newName))
	if err != nil {
		return repository.MoveResult{}, err
	}
	if exists {
		return repository.MoveResult{}, errs.NewConflictError(fmt.Sprintf("Cluster %q already exists", repository.SanitizeClusterName(newName)), true)
	}

	res, err := s.clusters.MoveItems(source, newName, items, true)
	if err != nil {
		return res, err
	}
	s.changed("move", res)
	return res, nil
}

func (s *ClusterService) MoveToUndefined(folder string, items []string) (repository.MoveResult, error) {
	res, err := s.clusters.MoveToUndefined(folder, items)
	if err != nil {
		return res, err
	}
	if res.Moved == 0 {
		return res, errs.NewNotFoundError("Nothing was moved: the items are no longer in "+folder, true, nil)
	}
	s.changed("move", res)
	return res, nil
}

func (s *ClusterService) MoveClusterToUndefined(folder string) (repository.MoveResult, error) {
	res, err := s.clusters.MoveClusterToUndefined(folder)
	if res.Moved > 0 {
		s.changed("move", res)
	}
	return res, err
}

func (s *ClusterService) Merge(source, target string) (repository.MergeResult, error) {
	res, err := s.clusters.Merge(source, target)
	if err != nil {
		return res, err
	}
	s.changed("merge", res)
	return res, nil
}

// MergeMany needs at least two names. An empty target merges into the first.
func (s *ClusterService) MergeMany(names []string, target string) (repository.MergeResult, error) {
	if len(names) < 2 {
		return repository.MergeResult{}, errs.NewBadRequestError("Select at least two clusters to merge", true, nil, nil, nil)
	}
	res, err := s.clusters.MergeMany(names, target)
	if err != nil {
		return res, err
	}
	s.changed("merge", res)
	return res, nil
}

func (s *ClusterService) changed(op string, data any) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.ClustersChanged, map[string]any{"op": op, "result": data})
}

