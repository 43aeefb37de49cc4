package repository

import (
	"errors"
	"slices"
	"sync"

	"github.com/spf13/afero"
)

// ErrIndexOutOfRange is returned by Delete for an index past either end.
var ErrIndexOutOfRange = errors.New("annotation index out of range")

type Action struct {
	ActionName string   `json:"action_name"`
	Params     []string `json:"params"`
}

// AnnotationInput is one image of the annotated cluster or group.
// Sensors is empty and Timestamp nil when no sensor row matched.
type AnnotationInput struct {
	ImgPath   string            `json:"img_path"`
	Sensors   map[string]string `json:"sensors"`
	Timestamp *string           `json:"timestamp"`
}

type AnnotationOutputs struct {
	Actions           []Action `json:"actions"`
	SimpleDescription string   `json:"simple_description"`
	OutputVocale      string   `json:"output_vocale"`
}

// Annotation is one training example. Group is set in group mode.
type Annotation struct {
	Cluster string            `json:"cluster"`
	Group   string            `json:"group,omitempty"`
	Inputs  []AnnotationInput `json:"inputs"`
	Outputs AnnotationOutputs `json:"outputs"`
}

// AnnotationRepository keeps annotations.json, a JSON array of Annotation.
type AnnotationRepository struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewAnnotationRepository(fsys afero.Fs, path string) *AnnotationRepository {
	return &AnnotationRepository{fs: fsys, path: path}
}

func (r *AnnotationRepository) List() ([]Annotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// ReplaceCluster drops every annotation of cluster, appends anns and
// returns the new total.
func (r *AnnotationRepository) ReplaceCluster(cluster string, anns []Annotation) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return 0, err
	}
	list = slices.DeleteFunc(list, func(a Annotation) bool { return a.Cluster == cluster })
	list = append(list, anns...)

	if err := writeJSON(r.fs, r.path, list); err != nil {
		return 0, err
	}
	return len(list), nil
}

func (r *AnnotationRepository) Delete(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(list) {
		return ErrIndexOutOfRange
	}
	return writeJSON(r.fs, r.path, slices.Delete(list, index, index+1))
}

func (r *AnnotationRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeJSON(r.fs, r.path, []Annotation{})
}

// Annotated returns the set of clusters with at least one annotation.
func (r *AnnotationRepository) Annotated() (map[string]struct{}, error) {
	list, err := r.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(list))
	for _, a := range list {
		out[a.Cluster] = struct{}{}
	}
	return out, nil
}

func (r *AnnotationRepository) read() ([]Annotation, error) {
	list := []Annotation{}
	if _, err := readJSON(r.fs, r.path, &list); err != nil {
		return nil, err
	}
	return list, nil
}
