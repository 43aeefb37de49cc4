package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/config"
	"github.com/deppfellow/cluster-reviewer/internal/handler"
	"github.com/deppfellow/cluster-reviewer/internal/lib/utils"
	"github.com/deppfellow/cluster-reviewer/internal/logger"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/router"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	var rootDir string

	root := &cobra.Command{
		Use:           "reviewer",
		Short:         "Review image clusters next to the sensor readings they were taken under",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rootDir, "root", "", "directory holding the clusters and data files (overrides REVIEWER_REVIEW__ROOT_DIR)")

	serve := newServeCmd(&rootDir)
	root.AddCommand(serve, newMatchCmd(&rootDir))

	// A bare "reviewer" starts the server.
	root.RunE = serve.RunE

	return root
}

func loadConfig(rootDir string) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Review.RootDir = rootDir
	}
	return cfg, nil
}

func newServeCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the review server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*rootDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return serve(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, out io.Writer) error {
	loggerService, err := logger.NewLoggerService(cfg.Observability)
	if err != nil {
		return err
	}
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	srv, err := server.New(cfg, &log, loggerService)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize server")
		return err
	}

	repos := repository.NewRepositories(srv)
	services, err := service.NewServices(srv, repos)
	if err != nil {
		return fmt.Errorf("could not create services: %w", err)
	}
	handlers, err := handler.NewHandlers(srv, services)
	if err != nil {
		return fmt.Errorf("could not create handlers: %w", err)
	}

	srv.SetupHTTPServer(router.NewRouter(srv, handlers))
	printBanner(out, cfg, srv)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
			_ = srv.Shutdown(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	log.Info().Msg("server exited properly")
	return nil
}

func printBanner(w io.Writer, cfg *config.Config, srv *server.Server) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)

	bold.Fprintln(w, "cluster reviewer")
	dim.Fprintf(w, "  root         %s\n", srv.Root)
	dim.Fprintf(w, "  base folder  %s\n", srv.Settings.Current().BaseFolder)
	color.New(color.FgGreen).Fprintf(w, "  listening on http://localhost:%s\n", cfg.Server.Port)
}

func newMatchCmd(rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "match <filename>...",
		Short: "Print the sensor row each image filename matches",
		Long: "Loads the sensor log once and prints, as JSON, the nearest row within " +
			"tolerance for each DD-MM_HH-MM-SS image filename.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*rootDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return match(cmd.Context(), cfg, args, cmd.OutOrStdout())
		},
	}
}

func match(ctx context.Context, cfg *config.Config, filenames []string, out io.Writer) error {
	// The load below is synchronous; skip the background one.
	cfg.Sensor.LoadOnStart = false

	// stdout carries the JSON result.
	log := logger.NewLogger(cfg.Observability).
		Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	srv, err := server.New(cfg, &log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	stats, err := srv.Sensors.Reload(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sensor log: %w", err)
	}
	log.Debug().Int("rows", stats.Rows).Int("skipped", stats.Skipped).Msg("sensor log loaded")

	results, err := service.NewSensorService(srv.Sensors, srv, &log).Match(filenames)
	if err != nil {
		return err
	}
	return utils.PrintJSON(out, results)
}
