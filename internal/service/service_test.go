package service

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const testSensorCSV = "timestamp,light.lamp,light.bed\n" +
	"2024-07-03 14:00:00,on,off\n" +
	"2024-07-03 14:10:00,off,off\n"

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(eventType string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fakeQueue struct {
	reasons []string
	err     error
}

func (q *fakeQueue) EnqueueSensorReload(reason string) error {
	if q.err != nil {
		return q.err
	}
	q.reasons = append(q.reasons, reason)
	return nil
}

type testEnv struct {
	fs       afero.Fs
	settings *settings.Store
	sensors  *timeseries.Store
	repos    *repository.Repositories
	events   *fakePublisher
	queue    *fakeQueue
	logger   *zerolog.Logger
}

func newTestEnv(t *testing.T, mutate func(*settings.Settings)) *testEnv {
	t.Helper()

	fsys := afero.NewMemMapFs()
	nop := zerolog.Nop()

	defaults := settings.Settings{
		BaseFolder:         "clusters",
		CSVFile:            "sensors.csv",
		AnnotationsEnabled: true,
		ActionParams:       settings.DefaultActionParams(),
		Year:               2024,
		ToleranceMs:        (5 * time.Minute).Milliseconds(),
	}
	if mutate != nil {
		mutate(&defaults)
	}

	store := settings.NewStore(fsys, "/data/settings.yaml", defaults, &nop)
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}

	sensors := timeseries.NewStore(timeseries.StoreOptions{
		Source: func() (timeseries.Source, error) {
			return timeseries.NewCSVSource(fsys, path.Join("/", store.Current().CSVFile)), nil
		},
		Loader:     timeseries.NewLoader(time.UTC, &nop),
		Normalizer: timeseries.NewNormalizer(defaults.Year, time.UTC),
		Tolerance:  defaults.Tolerance(),
		Logger:     &nop,
	})

	if err := fsys.MkdirAll("/clusters", 0o755); err != nil {
		t.Fatal(err)
	}

	repos := &repository.Repositories{
		Clusters:          repository.NewClusterRepository(fsys, store, "undefined", repository.NewMovementLog(fsys, "/data/movement_log.json"), &nop),
		Descriptions:      repository.NewDescriptionRepository(fsys, "/data/descriptions.csv"),
		QuickDescriptions: repository.NewQuickDescriptionRepository(fsys, "/data/quick_descriptions.csv"),
		Skipped:           repository.NewSkippedRepository(fsys, "/data/skipped_clusters.json"),
		Annotations:       repository.NewAnnotationRepository(fsys, "/data/annotations.json"),
		Workspace:         repository.NewWorkspaceRepository(fsys),
	}

	return &testEnv{
		fs:       fsys,
		settings: store,
		sensors:  sensors,
		repos:    repos,
		events:   &fakePublisher{},
		queue:    &fakeQueue{},
		logger:   &nop,
	}
}

// loadSensors writes the sensor log and loads it synchronously.
func (e *testEnv) loadSensors(t *testing.T) {
	t.Helper()
	if err := afero.WriteFile(e.fs, "/sensors.csv", []byte(testSensorCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.sensors.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := afero.WriteFile(e.fs, path.Join("/clusters", p), []byte(p), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func (e *testEnv) clusterService() *ClusterService {
	return NewClusterService(e.repos, e.settings, e.sensors, e.events, e.logger)
}

// httpStatus returns the status of an *errs.HTTPError, or 0.
func httpStatus(err error) int {
	var he *errs.HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}
