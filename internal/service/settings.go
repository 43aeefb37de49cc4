package service

import (
	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/deppfellow/cluster-reviewer/internal/validation"
	"github.com/rs/zerolog"
)

// SettingsView is the settings page model.
type SettingsView struct {
	Settings    settings.Settings       `json:"settings"`
	Defaults    settings.Settings       `json:"defaults"`
	Path        string                  `json:"path"`
	Folders     []string                `json:"folders"`
	SensorFiles []repository.SensorFile `json:"sensor_files"`
	Sensors     timeseries.Status       `json:"sensors"`
}

// SettingsService edits the runtime settings and pushes them into the
// sensor store.
type SettingsService struct {
	store     *settings.Store
	sensors   *timeseries.Store
	workspace *repository.WorkspaceRepository
	queue     SensorReloadQueue
	events    events.Publisher
	logger    *zerolog.Logger
}

func NewSettingsService(store *settings.Store, sensors *timeseries.Store, workspace *repository.WorkspaceRepository, queue SensorReloadQueue, publisher events.Publisher, logger *zerolog.Logger) *SettingsService {
	return &SettingsService{
		store:     store,
		sensors:   sensors,
		workspace: workspace,
		queue:     queue,
		events:    publisher,
		logger:    logger,
	}
}

func (s *SettingsService) View() (SettingsView, error) {
	folders, err := s.workspace.Folders()
	if err != nil {
		return SettingsView{}, err
	}
	files, err := s.workspace.SensorFiles()
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{
		Settings:    s.store.Current(),
		Defaults:    s.store.Defaults(),
		Path:        s.store.Path(),
		Folders:     folders,
		SensorFiles: files,
		Sensors:     s.sensors.Status(),
	}, nil
}

// Save validates, persists and applies next. Changing the sensor file
// queues a reload.
func (s *SettingsService) Save(next settings.Settings) (settings.Settings, error) {
	prev := s.store.Current()
	saved, err := s.store.Save(next)
	if err != nil {
		return prev, validation.AsHTTPError(err)
	}
	s.applied(prev, saved, "settings saved")
	return saved, nil
}

// Reset restores the defaults derived from the process configuration.
func (s *SettingsService) Reset() (settings.Settings, error) {
	prev := s.store.Current()
	saved, err := s.store.Reset()
	if err != nil {
		return prev, err
	}
	s.applied(prev, saved, "settings reset")
	return saved, nil
}

// Restart rereads the settings file and reloads the sensor log, as if the
// process had been restarted.
func (s *SettingsService) Restart() error {
	prev := s.store.Current()
	loaded, err := s.store.Load()
	if err != nil {
		return validation.AsHTTPError(err)
	}
	s.apply(loaded)
	if err := s.queue.EnqueueSensorReload("restart"); err != nil {
		return err
	}
	s.publish(prev, loaded)
	s.logger.Info().Msg("settings reloaded, sensor reload queued")
	return nil
}

func (s *SettingsService) applied(prev, next settings.Settings, msg string) {
	s.apply(next)
	if prev.CSVFile != next.CSVFile {
		if err := s.queue.EnqueueSensorReload("settings"); err != nil {
			s.logger.Error().Err(err).Msg("failed to queue sensor reload")
		}
	}
	s.publish(prev, next)
	s.logger.Info().Msg(msg)
}

// apply pushes the matching parameters into the sensor store.
func (s *SettingsService) apply(st settings.Settings) {
	n := s.sensors.Normalizer()
	n.Year = st.Year
	s.sensors.SetNormalizer(n)
	s.sensors.SetTolerance(st.Tolerance())
}

func (s *SettingsService) publish(prev, next settings.Settings) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.SettingsChanged, map[string]any{
		"settings":            next,
		"base_folder_changed": prev.BaseFolder != next.BaseFolder,
	})
}
