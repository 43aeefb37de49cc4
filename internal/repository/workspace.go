package repository

import (
	"errors"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// SensorFile is a CSV file the settings page offers as sensor log.
type SensorFile struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

// WorkspaceRepository lists what sits in the root directory, for the
// settings page pickers.
type WorkspaceRepository struct {
	fs afero.Fs
}

func NewWorkspaceRepository(fsys afero.Fs) *WorkspaceRepository {
	return &WorkspaceRepository{fs: fsys}
}

func visibleDir(e fs.FileInfo) bool {
	return e.IsDir() && !strings.HasPrefix(e.Name(), ".") && !strings.Contains(e.Name(), "node_modules")
}

// Folders lists the visible top-level directories.
func (r *WorkspaceRepository) Folders() ([]string, error) {
	entries, err := afero.ReadDir(r.fs, "/")
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if visibleDir(e) {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// SensorFiles lists *.csv files in the root directory and one level below.
// Paths are relative to the root directory.
func (r *WorkspaceRepository) SensorFiles() ([]SensorFile, error) {
	out := []SensorFile{}

	entries, err := afero.ReadDir(r.fs, "/")
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		switch {
		case visibleDir(e):
			dirs = append(dirs, e.Name())
		case !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".csv"):
			out = append(out, SensorFile{Name: e.Name(), Path: e.Name(), Location: "."})
		}
	}

	for _, d := range dirs {
		sub, err := afero.ReadDir(r.fs, "/"+d)
		if errors.Is(err, fs.ErrPermission) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range sub {
			if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
				out = append(out, SensorFile{Name: e.Name(), Path: path.Join(d, e.Name()), Location: d})
			}
		}
	}
	return out, nil
}
