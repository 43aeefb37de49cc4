package repository

import (
	"slices"
	"sync"

	"github.com/spf13/afero"
)

// SkippedRepository keeps the clusters the operator chose to skip during
// review, as a JSON array in skipped_clusters.json.
type SkippedRepository struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewSkippedRepository(fsys afero.Fs, path string) *SkippedRepository {
	return &SkippedRepository{fs: fsys, path: path}
}

func (r *SkippedRepository) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// Add reports false when folder was already skipped.
func (r *SkippedRepository) Add(folder string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return false, err
	}
	if slices.Contains(list, folder) {
		return false, nil
	}
	return true, writeJSON(r.fs, r.path, append(list, folder))
}

// Remove reports false when folder was not skipped.
func (r *SkippedRepository) Remove(folder string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return false, err
	}
	i := slices.Index(list, folder)
	if i < 0 {
		return false, nil
	}
	return true, writeJSON(r.fs, r.path, slices.Delete(list, i, i+1))
}

func (r *SkippedRepository) read() ([]string, error) {
	list := []string{}
	if _, err := readJSON(r.fs, r.path, &list); err != nil {
		return nil, err
	}
	return list, nil
}
