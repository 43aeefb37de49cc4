// Package server defines the core Server struct that composes the app's main dependencies.
//
// It contains the initialization logic to spin up the HTTP server
// and handles graceful shutdowns
//
// It owns the lifecycle of:
//   - configuration and the runtime settings store
//   - logger + optional New Relic service wrapper
//   - the filesystem rooted at the review root directory
//   - the sensor dataset store
//   - the websocket event hub
//   - background job workers
//   - http.Server
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/config"
	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/lib/job"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	loggerPkg "github.com/deppfellow/cluster-reviewer/internal/logger"
)

// Server is the application container that holds shared resources.
//
// It is not the HTTP server itself. It holds:
//   - the config and the operator-editable settings
//   - the logger(s)
//   - the rooted filesystem every repository works on
//   - the sensor store, event hub and background job service
//   - an internal *http.Server used to listen and serve requests
type Server struct {
	// Config holds all environment/config values for the app.
	Config *config.Config

	// Logger is the application's main structured logger.
	Logger *zerolog.Logger

	// LoggerService optionally holds the New Relic application instance.
	// If New Relic is disabled, this may exist but contain nil nrApp.
	LoggerService *loggerPkg.LoggerService

	// Root is the absolute path FS is rooted at.
	Root string

	// FS sees Root as "/". Paths outside it cannot be reached.
	FS afero.Fs

	// Settings publishes the runtime settings.
	Settings *settings.Store

	// Sensors publishes the sensor dataset images are matched against.
	Sensors *timeseries.Store

	// Events pushes notifications to open pages.
	Events *events.Hub

	// Job runs background workers and accepts tasks.
	Job *job.JobService

	// httpServer is the standard library HTTP server instance.
	// It is configured in SetupHTTPServer and started in Start().
	httpServer *http.Server

	stop context.CancelFunc
}

// New constructs a Server and initializes core dependencies.
//
// It does NOT start the HTTP server directly. That is done in SetupHTTPServer + Start.
//
// Initialization performed:
//   - Rooted filesystem at Review.RootDir (must exist)
//   - Settings store, loaded from the settings file if present
//   - Sensor store with a source chosen by Sensor.Source
//   - Event hub and job workers, started
//   - An initial sensor load is queued when Sensor.LoadOnStart is set
//
// A broken settings file does not block startup; the defaults are used and
// the problem is logged.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*Server, error) {
	root, err := filepath.Abs(cfg.Review.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root dir: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open root dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root dir %s is not a directory", root)
	}

	return NewWithFS(cfg, logger, loggerService, root, afero.NewBasePathFs(afero.NewOsFs(), root))
}

// NewWithFS is New on a caller-provided filesystem. Tests pass an afero.MemMapFs.
func NewWithFS(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService, root string, fsys afero.Fs) (*Server, error) {
	loc, err := cfg.Sensor.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid sensor timezone: %w", err)
	}

	settingsStore := settings.NewStore(fsys, DataPath(cfg, cfg.Review.SettingsFile), settings.FromConfig(cfg), logger)
	if _, err := settingsStore.Load(); err != nil {
		logger.Error().Err(err).Str("path", settingsStore.Path()).Msg("Failed to load settings, using defaults")
	}
	current := settingsStore.Current()

	s := &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		Root:          root,
		FS:            fsys,
		Settings:      settingsStore,
	}

	s.Sensors = timeseries.NewStore(timeseries.StoreOptions{
		Source:     s.sensorSource,
		Loader:     timeseries.NewLoader(loc, logger),
		Normalizer: timeseries.NewNormalizer(current.Year, loc),
		Tolerance:  current.Tolerance(),
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	s.Events = events.NewHub(cfg.Server.CORSAllowedOrigins, logger)
	go s.Events.Run(ctx)

	// Reloads are single-flight in the store, so one worker is enough.
	s.Job = job.NewJobService(logger, job.Options{Concurrency: 1, QueueSize: 8})
	s.Job.InitHandlers(s.Sensors, s.Events)
	if err := s.Job.Start(); err != nil {
		cancel()
		return nil, err
	}

	if cfg.Sensor.LoadOnStart {
		if err := s.EnqueueSensorReload("startup"); err != nil {
			logger.Error().Err(err).Msg("Failed to queue initial sensor load")
		}
	}

	return s, nil
}

// DataPath places a data file inside Review.DataDir on the rooted filesystem.
func DataPath(cfg *config.Config, name string) string {
	return filepath.Join("/", cfg.Review.DataDir, name)
}

// EnqueueSensorReload queues a background reload of the sensor log.
func (s *Server) EnqueueSensorReload(reason string) error {
	task, err := job.NewSensorsReloadTask(reason)
	if err != nil {
		return err
	}
	return s.Job.Enqueue(task)
}

// sensorSource resolves the sensor source from the config and the current
// settings. It runs on every reload.
func (s *Server) sensorSource() (timeseries.Source, error) {
	loc, err := s.Config.Sensor.Location()
	if err != nil {
		return nil, err
	}

	if s.Config.Sensor.Source == config.SensorSourceInflux {
		in := s.Config.Sensor.Influx
		return timeseries.NewInfluxSource(timeseries.InfluxOptions{
			URL:         in.URL,
			Token:       in.Token,
			Org:         in.Org,
			Bucket:      in.Bucket,
			Measurement: in.Measurement,
			Range:       in.Range,
			Location:    loc,
		}), nil
	}

	file := s.Settings.Current().CSVFile
	if file == "" {
		return nil, nil
	}
	if filepath.IsAbs(file) {
		return timeseries.NewCSVSource(afero.NewOsFs(), file), nil
	}
	return timeseries.NewCSVSource(s.FS, filepath.Join("/", file)), nil
}

// SetupHTTPServer configures the internal net/http server.
//
// The actual router/mux is passed in as handler.
func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:    ":" + s.Config.Server.Port,
		Handler: handler,

		// Config stores int values, interpreted here as seconds.
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Start runs the HTTP server.
//
// It requires SetupHTTPServer to be called first.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	s.Logger.Info().
		Str("port", s.Config.Server.Port).
		Str("env", s.Config.Primary.Env).
		Str("root", s.Root).
		Str("base_folder", s.Settings.Current().BaseFolder).
		Msg("starting server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its dependencies.
//
// It stops the HTTP server (finishing inflight requests until ctx
// deadline), then the job workers, then the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	if s.Job != nil {
		s.Job.Stop()
	}

	if s.stop != nil {
		s.stop()
	}

	return nil
}
