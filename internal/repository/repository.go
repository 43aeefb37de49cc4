// Package repository handles all interactions with the image tree and the
// reviewer's data files.
//
// It walks and moves cluster directories and reads and writes the CSV and
// JSON files the reviewer keeps next to them, abstracting the filesystem
// away from the service layer. Every path is rooted in an afero.Fs so tests
// run against an in-memory tree.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/spf13/afero"
)

// Layout supplies the settings that decide where clusters live and how
// they are shaped. *settings.Store satisfies it.
type Layout interface {
	Current() settings.Settings
}

// readJSON decodes path into v. found is false when the file does not exist.
func readJSON(fsys afero.Fs, path string, v any) (found bool, err error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSON encodes v with two-space indentation and replaces path.
func writeJSON(fsys afero.Fs, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(fsys, path, data)
}

// writeFileAtomic writes to a sibling temp file and renames it over path.
func writeFileAtomic(fsys afero.Fs, path string, data []byte) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

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
