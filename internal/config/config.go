// Package config manages environment variables.
//
// It reads variables from the process environment (and a `.env` file when
// one exists), loads them into structured Go types and validates them so the
// values can be reused across the application runtime.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Validate required values so the app fails fast on bad/missing config.
//   - Provide defaults for every block so a bare `reviewer serve` works.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	// Side-effect import: if a `.env` file exists it gets loaded into the
	// process env before anything below reads it.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

/*
	Key idea in this file:
	- Env vars are read using a prefix: REVIEWER_
	- Keys are normalized (lowercased, prefix removed)
	- A double underscore nests: REVIEWER_SENSOR__CSV_FILE -> sensor.csv_file
	  so single underscores stay part of the key name.
*/

const (
	envPrefix = "REVIEWER_"

	SensorSourceCSV    = "csv"
	SensorSourceInflux = "influx"
)

// Config is the root configuration object for the application.
//
// The `koanf:"..."` tags specify where koanf maps values from.
// The `validate:"..."` tags are enforced by go-playground/validator.
//
// Observability is a pointer because it is optional. If not provided,
// defaults are injected at load time.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Review        ReviewConfig         `koanf:"review" validate:"required"`
	Sensor        SensorConfig         `koanf:"sensor" validate:"required"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups settings for the HTTP server runtime.
//
// Timeouts are seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`

	// LocalOnly rejects every request that does not come from a loopback address.
	// The tool has no authentication, so this is on by default.
	LocalOnly bool `koanf:"local_only"`

	// ReloadRate is how many sensor reloads per second a client may trigger.
	ReloadRate  float64 `koanf:"reload_rate" validate:"gt=0"`
	ReloadBurst int     `koanf:"reload_burst" validate:"min=1"`
}

// ReviewConfig locates the image tree and the files the reviewer writes.
//
// Everything the operator can change at runtime from the settings page
// (base folder, group mode, annotations toggle) only seeds the defaults here.
type ReviewConfig struct {
	// RootDir anchors every relative path below.
	RootDir string `koanf:"root_dir" validate:"required"`

	// BaseFolder holds the cluster_* directories, relative to RootDir.
	BaseFolder string `koanf:"base_folder" validate:"required"`

	// DataDir holds descriptions, annotations, the movement log and the
	// settings file, relative to RootDir.
	DataDir string `koanf:"data_dir" validate:"required"`

	// UndefinedFolder receives images removed from clusters. It lives inside
	// BaseFolder and never starts with "cluster_".
	UndefinedFolder string `koanf:"undefined_folder" validate:"required"`

	GroupMode          bool   `koanf:"group_mode"`
	AnnotationsEnabled bool   `koanf:"annotations_enabled"`
	SettingsFile       string `koanf:"settings_file" validate:"required"`
}

// SensorConfig controls where the sensor log comes from and how images are
// joined to it.
type SensorConfig struct {
	Source string `koanf:"source" validate:"required,oneof=csv influx"`

	// CSVFile is the default sensor log. Empty disables sensor matching until
	// one is chosen on the settings page. Relative paths resolve against
	// Review.RootDir.
	CSVFile string `koanf:"csv_file"`

	// Year is used for filenames that do not carry one. Zero means the
	// current year at startup.
	Year int `koanf:"year" validate:"min=0,max=9999"`

	// Timezone is the wall clock both the sensor log and image filenames are
	// written in ("Local", "UTC", "Europe/Rome", ...).
	Timezone string `koanf:"timezone" validate:"required"`

	Tolerance   time.Duration `koanf:"tolerance" validate:"min=0"`
	LoadOnStart bool          `koanf:"load_on_start"`

	Influx InfluxConfig `koanf:"influx"`
}

// InfluxConfig is only read when Sensor.Source is "influx".
type InfluxConfig struct {
	URL         string        `koanf:"url"`
	Token       string        `koanf:"token"`
	Org         string        `koanf:"org"`
	Bucket      string        `koanf:"bucket"`
	Measurement string        `koanf:"measurement"`
	Range       time.Duration `koanf:"range"`
}

// Default returns the configuration used when nothing is set in the environment.
func Default() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:               "3000",
			ReadTimeout:        30,
			WriteTimeout:       30,
			IdleTimeout:        60,
			CORSAllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			LocalOnly:          true,
			ReloadRate:         0.2,
			ReloadBurst:        2,
		},
		Review: ReviewConfig{
			RootDir:            ".",
			BaseFolder:         "clusters_kmeans_500_multi",
			DataDir:            ".",
			UndefinedFolder:    "undefined",
			GroupMode:          false,
			AnnotationsEnabled: true,
			SettingsFile:       "reviewer_settings.yaml",
		},
		Sensor: SensorConfig{
			Source:      SensorSourceCSV,
			Timezone:    "Local",
			Tolerance:   5 * time.Minute,
			LoadOnStart: true,
			Influx: InfluxConfig{
				Range: 30 * 24 * time.Hour,
			},
		},
		Observability: DefaultObservabilityConfig(),
	}
}

// LoadConfig loads configuration from environment variables, unmarshals it on
// top of Default(), validates it and fills in derived values.
//
// Behavior summary:
//   - Loads env vars with prefix REVIEWER_
//   - Converts env keys into koanf keys using "__" as the nesting separator
//   - Unmarshals into Config (missing keys keep their defaults)
//   - Validates tags, then cross-field rules
//   - Sets default observability if missing
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	// REVIEWER_SENSOR__CSV_FILE -> "sensor.csv_file"
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	mainConfig := Default()
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal main config: %w", err)
	}

	if err := mainConfig.finalize(); err != nil {
		return nil, err
	}

	return mainConfig, nil
}

// finalize validates c and fills derived values. LoadConfig calls it; tests
// that build a Config by hand call it too.
func (c *Config) finalize() error {
	if c.Sensor.Year == 0 {
		c.Sensor.Year = time.Now().Year()
	}
	if c.Sensor.Tolerance == 0 {
		c.Sensor.Tolerance = 5 * time.Minute
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if _, err := c.Sensor.Location(); err != nil {
		return fmt.Errorf("config validation failed: sensor.timezone: %w", err)
	}

	if c.Sensor.Source == SensorSourceInflux {
		in := c.Sensor.Influx
		if in.URL == "" || in.Org == "" || in.Bucket == "" || in.Measurement == "" {
			return fmt.Errorf("config validation failed: sensor.influx needs url, org, bucket and measurement")
		}
	}

	if strings.HasPrefix(c.Review.UndefinedFolder, "cluster_") {
		return fmt.Errorf("config validation failed: review.undefined_folder must not start with cluster_")
	}

	// If observability config wasn't provided, inject a default.
	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}

	// Service name is fixed and the environment always follows primary.env
	// so logs and traces are labelled consistently.
	c.Observability.ServiceName = "cluster-reviewer"
	c.Observability.Environment = c.Primary.Env

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

// Location resolves Timezone.
func (s SensorConfig) Location() (*time.Location, error) {
	switch s.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}
