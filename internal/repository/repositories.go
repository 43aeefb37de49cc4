package repository

import (
	"github.com/deppfellow/cluster-reviewer/internal/server"
)

// File names inside Review.DataDir.
const (
	MovementLogFile       = "movement_log.json"
	DescriptionsFile      = "descriptions.csv"
	QuickDescriptionsFile = "quick_descriptions.csv"
	SkippedFile           = "skipped_clusters.json"
	AnnotationsFile       = "annotations.json"
)

// Repositories is a container for all repository instances.
//
// Every repository works on s.FS, so paths are rooted at the review root.
type Repositories struct {
	Clusters          *ClusterRepository
	Movements         *MovementLog
	Descriptions      *DescriptionRepository
	QuickDescriptions *QuickDescriptionRepository
	Skipped           *SkippedRepository
	Annotations       *AnnotationRepository
	Workspace         *WorkspaceRepository
}

// NewRepositories constructs the repository container.
func NewRepositories(s *server.Server) *Repositories {
	data := func(name string) string { return server.DataPath(s.Config, name) }

	movements := NewMovementLog(s.FS, data(MovementLogFile))

	return &Repositories{
		Clusters:          NewClusterRepository(s.FS, s.Settings, s.Config.Review.UndefinedFolder, movements, s.Logger),
		Movements:         movements,
		Descriptions:      NewDescriptionRepository(s.FS, data(DescriptionsFile)),
		QuickDescriptions: NewQuickDescriptionRepository(s.FS, data(QuickDescriptionsFile)),
		Skipped:           NewSkippedRepository(s.FS, data(SkippedFile)),
		Annotations:       NewAnnotationRepository(s.FS, data(AnnotationsFile)),
		Workspace:         NewWorkspaceRepository(s.FS),
	}
}
