// Package settings holds the part of the configuration the operator edits
// from the settings page while the server runs.
//
// Values start from the process configuration, are overlaid with whatever
// was last saved to the settings file, and are published through Store as
// immutable snapshots.
package settings

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/config"
	"github.com/deppfellow/cluster-reviewer/internal/validation"
)

// ActionParams maps an action name to its parameter slots. Each slot lists
// the values the operator may pick for it.
//
//	turn_on: [[camera], [bed, desk, lamp, monitor]]
type ActionParams map[string][][]string

// DefaultActionParams is used when nothing else is configured.
func DefaultActionParams() ActionParams {
	return ActionParams{
		"turn_on": {
			{"camera"},
			{"bed", "desk", "lamp", "monitor"},
		},
		"turn_off": {
			{"camera"},
			{"bed", "desk", "lamp", "monitor"},
		},
		"turn_off_all": {
			{"camera"},
		},
	}
}

// Settings is one published snapshot. Treat it as read-only; use Clone
// before changing a copy.
type Settings struct {
	BaseFolder         string       `yaml:"base_folder" json:"base_folder" validate:"required"`
	CSVFile            string       `yaml:"csv_file" json:"csv_file"`
	GroupMode          bool         `yaml:"group_mode" json:"group_mode"`
	AnnotationsEnabled bool         `yaml:"annotations_enabled" json:"annotations_enabled"`
	ActionParams       ActionParams `yaml:"action_params" json:"action_params"`

	// Year fills in filenames that carry none.
	Year int `yaml:"year" json:"year" validate:"min=1,max=9999"`

	// ToleranceMs is the widest gap, inclusive, between an image and its sensor row.
	ToleranceMs int64 `yaml:"tolerance_ms" json:"tolerance_ms" validate:"min=0"`
}

// FromConfig derives the default settings from the process configuration.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		BaseFolder:         cfg.Review.BaseFolder,
		CSVFile:            cfg.Sensor.CSVFile,
		GroupMode:          cfg.Review.GroupMode,
		AnnotationsEnabled: cfg.Review.AnnotationsEnabled,
		ActionParams:       DefaultActionParams(),
		Year:               cfg.Sensor.Year,
		ToleranceMs:        cfg.Sensor.Tolerance.Milliseconds(),
	}
}

// Tolerance returns ToleranceMs as a duration.
func (s Settings) Tolerance() time.Duration {
	return time.Duration(s.ToleranceMs) * time.Millisecond
}

// Actions lists the configured action names in a stable order.
func (s Settings) Actions() []string {
	return slices.Sorted(maps.Keys(s.ActionParams))
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	if s.ActionParams != nil {
		out.ActionParams = make(ActionParams, len(s.ActionParams))
		for name, slots := range s.ActionParams {
			copied := make([][]string, len(slots))
			for i, slot := range slots {
				copied[i] = slices.Clone(slot)
			}
			out.ActionParams[name] = copied
		}
	}
	return out
}

// Validate checks tags and the shape of BaseFolder and ActionParams.
func (s Settings) Validate() error {
	if err := validation.Validator().Struct(s); err != nil {
		return err
	}

	var problems validation.CustomValidationErrors

	clean := path.Clean(strings.ReplaceAll(s.BaseFolder, `\`, "/"))
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		problems = append(problems, validation.CustomValidationError{
			Field:   "base_folder",
			Message: "must be a folder below the root directory",
		})
	}

	for _, name := range s.Actions() {
		if strings.TrimSpace(name) == "" {
			problems = append(problems, validation.CustomValidationError{
				Field:   "action_params",
				Message: "action names must not be empty",
			})
			continue
		}
		for i, slot := range s.ActionParams[name] {
			if len(slot) == 0 {
				problems = append(problems, validation.CustomValidationError{
					Field:   fmt.Sprintf("action_params.%s[%d]", name, i),
					Message: "must list at least one option",
				})
			}
		}
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// ValidateAction checks one annotation action against the configured
// parameter slots: the name must exist and each chosen parameter must be
// one of its slot's options. Fewer parameters than slots is allowed.
func (s Settings) ValidateAction(name string, params []string) error {
	slots, ok := s.ActionParams[name]
	if !ok {
		return fmt.Errorf("unknown action %q", name)
	}
	if len(params) > len(slots) {
		return fmt.Errorf("action %q takes at most %d parameter(s), got %d", name, len(slots), len(params))
	}
	for i, p := range params {
		if !slices.Contains(slots[i], p) {
			return fmt.Errorf("action %q parameter %d must be one of %s", name, i+1, strings.Join(slots[i], ", "))
		}
	}
	return nil
}
