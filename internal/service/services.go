package service

import (
	"github.com/deppfellow/cluster-reviewer/internal/lib/job"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/server"
)

type Services struct {
	Clusters    *ClusterService
	Review      *ReviewService
	Annotations *AnnotationService
	Sensors     *SensorService
	Settings    *SettingsService
	Job         *job.JobService
}

func NewServices(s *server.Server, repos *repository.Repositories) (*Services, error) {
	clusters := NewClusterService(repos, s.Settings, s.Sensors, s.Events, s.Logger)

	return &Services{
		Clusters:    clusters,
		Review:      NewReviewService(repos, clusters, s.Events, s.Logger),
		Annotations: NewAnnotationService(repos, s.Settings, s.Sensors, s.Logger),
		Sensors:     NewSensorService(s.Sensors, s, s.Logger),
		Settings:    NewSettingsService(s.Settings, s.Sensors, repos.Workspace, s, s.Events, s.Logger),
		Job:         s.Job,
	}, nil
}
