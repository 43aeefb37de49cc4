package service

import (
	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/rs/zerolog"
)

// TopDescriptionCount is how many frequent descriptions the review page suggests.
const TopDescriptionCount = 5

// ReviewState is the review page model. Cluster is nil when every cluster
// has been described or skipped.
type ReviewState struct {
	Cluster         *ClusterView `json:"cluster,omitempty"`
	Total           int          `json:"total"`
	Done            int          `json:"done"`
	Remaining       int          `json:"remaining"`
	TopDescriptions []string     `json:"top_descriptions"`
}

// ReviewService walks the operator through the clusters that still need a
// description.
type ReviewService struct {
	clusters     *repository.ClusterRepository
	descriptions *repository.DescriptionRepository
	quick        *repository.QuickDescriptionRepository
	skipped      *repository.SkippedRepository
	views        *ClusterService
	events       events.Publisher
	logger       *zerolog.Logger
}

func NewReviewService(repos *repository.Repositories, views *ClusterService, publisher events.Publisher, logger *zerolog.Logger) *ReviewService {
	return &ReviewService{
		clusters:     repos.Clusters,
		descriptions: repos.Descriptions,
		quick:        repos.QuickDescriptions,
		skipped:      repos.Skipped,
		views:        views,
		events:       publisher,
		logger:       logger,
	}
}

// Queue returns the clusters still to review, in cluster order: every
// cluster that is neither described nor skipped.
func (s *ReviewService) Queue() ([]string, error) {
	all, err := s.clusters.List()
	if err != nil {
		return nil, err
	}
	described, err := s.descriptions.Described()
	if err != nil {
		return nil, err
	}
	skipped, err := s.skipped.List()
	if err != nil {
		return nil, err
	}
	for _, f := range skipped {
		described[f] = struct{}{}
	}

	out := []string{}
	for _, c := range all {
		if _, done := described[c]; !done {
			out = append(out, c)
		}
	}
	return out, nil
}

// State returns the next cluster to review with progress counters. Done only
// counts clusters that still exist.
func (s *ReviewService) State() (ReviewState, error) {
	all, err := s.clusters.List()
	if err != nil {
		return ReviewState{}, err
	}
	queue, err := s.Queue()
	if err != nil {
		return ReviewState{}, err
	}
	top, err := s.descriptions.Top(TopDescriptionCount)
	if err != nil {
		return ReviewState{}, err
	}
	if top == nil {
		top = []string{}
	}

	state := ReviewState{
		Total:           len(all),
		Remaining:       len(queue),
		Done:            len(all) - len(queue),
		TopDescriptions: top,
	}
	if len(queue) == 0 {
		return state, nil
	}

	view, err := s.views.View(queue[0])
	if err != nil {
		return ReviewState{}, err
	}
	state.Cluster = &view
	return state, nil
}

// Describe stores the final description of folder, which takes it out of
// the review queue.
func (s *ReviewService) Describe(folder, description string) error {
	if err := s.descriptions.Save(folder, description); err != nil {
		return err
	}
	s.logger.Info().Str("cluster", folder).Msg("cluster described")
	s.publish("describe", folder)
	return nil
}

// SaveQuickDescription stores or, with an empty description, removes the
// note attached to folder.
func (s *ReviewService) SaveQuickDescription(folder, description string) error {
	return s.quick.Save(folder, description)
}

// Skip reports false when folder was already skipped.
func (s *ReviewService) Skip(folder string) (bool, error) {
	added, err := s.skipped.Add(folder)
	if err != nil {
		return false, err
	}
	if added {
		s.publish("skip", folder)
	}
	return added, nil
}

// Unskip reports false when folder was not skipped.
func (s *ReviewService) Unskip(folder string) (bool, error) {
	removed, err := s.skipped.Remove(folder)
	if err != nil {
		return false, err
	}
	if removed {
		s.publish("unskip", folder)
	}
	return removed, nil
}

func (s *ReviewService) publish(op, folder string) {
	if s.events != nil {
		s.events.Publish(events.ClustersChanged, map[string]any{"op": op, "cluster": folder})
	}
}
