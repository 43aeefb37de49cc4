package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "3000" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Sensor.Tolerance != 5*time.Minute {
		t.Errorf("tolerance = %v", cfg.Sensor.Tolerance)
	}
	if cfg.Sensor.Year != time.Now().Year() {
		t.Errorf("year = %d, want current year", cfg.Sensor.Year)
	}
	if cfg.Observability.ServiceName != "cluster-reviewer" {
		t.Errorf("service name = %q", cfg.Observability.ServiceName)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("REVIEWER_SERVER__PORT", "8080")
	t.Setenv("REVIEWER_SENSOR__CSV_FILE", "data/sensors.csv")
	t.Setenv("REVIEWER_SENSOR__YEAR", "2023")
	t.Setenv("REVIEWER_SENSOR__TIMEZONE", "UTC")
	t.Setenv("REVIEWER_SENSOR__TOLERANCE", "90s")
	t.Setenv("REVIEWER_REVIEW__GROUP_MODE", "true")
	t.Setenv("REVIEWER_OBSERVABILITY__LOGGING__LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Sensor.CSVFile != "data/sensors.csv" {
		t.Errorf("csv file = %q", cfg.Sensor.CSVFile)
	}
	if cfg.Sensor.Year != 2023 {
		t.Errorf("year = %d", cfg.Sensor.Year)
	}
	if cfg.Sensor.Tolerance != 90*time.Second {
		t.Errorf("tolerance = %v", cfg.Sensor.Tolerance)
	}
	if !cfg.Review.GroupMode {
		t.Error("group mode not set")
	}
	if cfg.Observability.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Observability.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Review.BaseFolder != "clusters_kmeans_500_multi" {
		t.Errorf("base folder = %q", cfg.Review.BaseFolder)
	}

	loc, err := cfg.Sensor.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("location = %v, %v", loc, err)
	}
}

func TestFinalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown source",
			mutate: func(c *Config) { c.Sensor.Source = "kafka" },
			want:   "validation failed",
		},
		{
			name:   "influx without bucket",
			mutate: func(c *Config) { c.Sensor.Source = SensorSourceInflux; c.Sensor.Influx.URL = "http://localhost:8086" },
			want:   "sensor.influx",
		},
		{
			name:   "bad timezone",
			mutate: func(c *Config) { c.Sensor.Timezone = "Mars/Olympus" },
			want:   "sensor.timezone",
		},
		{
			name:   "undefined folder looks like a cluster",
			mutate: func(c *Config) { c.Review.UndefinedFolder = "cluster_trash" },
			want:   "undefined_folder",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Observability.Logging.Level = "loud" },
			want:   "invalid logging level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.finalize()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("finalize() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestGetLogLevel(t *testing.T) {
	c := DefaultObservabilityConfig()
	c.Logging.Level = ""

	c.Environment = "production"
	if got := c.GetLogLevel(); got != "info" {
		t.Errorf("production level = %q", got)
	}

	c.Environment = "development"
	if got := c.GetLogLevel(); got != "debug" {
		t.Errorf("development level = %q", got)
	}
	if c.IsProduction() {
		t.Error("development reported as production")
	}
}
