package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Store publishes the active Settings and persists changes as YAML.
//
// Readers call Current and never block. Writers are serialised; each write
// lands on disk before the new snapshot is published.
type Store struct {
	fs       afero.Fs
	path     string
	defaults Settings
	logger   *zerolog.Logger

	mu      sync.Mutex
	current atomic.Pointer[Settings]
}

// NewStore returns a store that holds defaults until Load is called.
func NewStore(fsys afero.Fs, path string, defaults Settings, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if defaults.ActionParams == nil {
		defaults.ActionParams = DefaultActionParams()
	}

	s := &Store{fs: fsys, path: path, defaults: defaults.Clone(), logger: logger}
	initial := defaults.Clone()
	s.current.Store(&initial)
	return s
}

// Current returns the published snapshot.
func (s *Store) Current() Settings {
	return *s.current.Load()
}

// Defaults returns the settings Reset restores.
func (s *Store) Defaults() Settings {
	return s.defaults.Clone()
}

// Path is the settings file location on the store's filesystem.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file and publishes it overlaid on the defaults.
// A missing file publishes the defaults. A file that cannot be parsed or
// fails validation leaves the current snapshot untouched.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.defaults.Clone()

	data, err := afero.ReadFile(s.fs, s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Debug().Str("path", s.path).Msg("no settings file, using defaults")
	case err != nil:
		return s.Current(), fmt.Errorf("read settings: %w", err)
	default:
		var saved Settings
		if err := yaml.Unmarshal(data, &saved); err != nil {
			return s.Current(), fmt.Errorf("parse settings %s: %w", s.path, err)
		}
		next = overlay(next, data, saved)
	}

	if err := next.Validate(); err != nil {
		return s.Current(), err
	}

	s.current.Store(&next)
	return next, nil
}

// Save validates next, writes it and publishes it. An empty ActionParams
// falls back to the defaults.
func (s *Store) Save(next Settings) (Settings, error) {
	next = next.Clone()
	if len(next.ActionParams) == 0 {
		next.ActionParams = s.defaults.Clone().ActionParams
	}
	if next.Year == 0 {
		next.Year = s.defaults.Year
	}

	if err := next.Validate(); err != nil {
		return s.Current(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(next); err != nil {
		return s.Current(), err
	}

	s.current.Store(&next)
	s.logger.Info().
		Str("base_folder", next.BaseFolder).
		Str("csv_file", next.CSVFile).
		Bool("group_mode", next.GroupMode).
		Msg("settings saved")

	return next, nil
}

// Reset writes and publishes the defaults.
func (s *Store) Reset() (Settings, error) {
	return s.Save(s.defaults)
}

func (s *Store) write(next Settings) error {
	data, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeFileAtomic(s.fs, s.path, data)
}

// overlay copies onto base the keys that are present in the raw document,
// so a hand-edited file that only sets base_folder keeps every other default.
func overlay(base Settings, raw []byte, saved Settings) Settings {
	var present map[string]any
	if err := yaml.Unmarshal(raw, &present); err != nil {
		return base
	}

	if _, ok := present["base_folder"]; ok {
		base.BaseFolder = saved.BaseFolder
	}
	if _, ok := present["csv_file"]; ok {
		base.CSVFile = saved.CSVFile
	}
	if _, ok := present["group_mode"]; ok {
		base.GroupMode = saved.GroupMode
	}
	if _, ok := present["annotations_enabled"]; ok {
		base.AnnotationsEnabled = saved.AnnotationsEnabled
	}
	if _, ok := present["action_params"]; ok && len(saved.ActionParams) > 0 {
		base.ActionParams = saved.ActionParams
	}
	if _, ok := present["year"]; ok {
		base.Year = saved.Year
	}
	if _, ok := present["tolerance_ms"]; ok {
		base.ToleranceMs = saved.ToleranceMs
	}
	return base
}

// writeFileAtomic writes to a sibling temp file and renames it over path.
func writeFileAtomic(fsys afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fsys, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
