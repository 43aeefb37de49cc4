package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/fserr"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/rs/zerolog"
)

type AnnotateInput struct {
	Folder            string
	Actions           []repository.Action
	SimpleDescription string
	OutputVocale      string
}

type AnnotateResult struct {
	Message          string `json:"message"`
	Annotations      int    `json:"annotations"`
	TotalAnnotations int    `json:"total_annotations"`
}

// AnnotationsView is the annotations page model.
type AnnotationsView struct {
	Annotations  []repository.Annotation `json:"annotations"`
	ActionParams settings.ActionParams   `json:"action_params"`
}

// AnnotationService builds training examples from reviewed clusters. All
// operations fail with fserr.ErrDisabled while annotations are switched off.
type AnnotationService struct {
	annotations *repository.AnnotationRepository
	clusters    *repository.ClusterRepository
	layout      repository.Layout
	sensors     *timeseries.Store
	logger      *zerolog.Logger
}

func NewAnnotationService(repos *repository.Repositories, layout repository.Layout, sensors *timeseries.Store, logger *zerolog.Logger) *AnnotationService {
	return &AnnotationService{
		annotations: repos.Annotations,
		clusters:    repos.Clusters,
		layout:      layout,
		sensors:     sensors,
		logger:      logger,
	}
}

// Enabled reports whether annotations are switched on in the settings.
func (s *AnnotationService) Enabled() bool {
	return s.layout.Current().AnnotationsEnabled
}

func (s *AnnotationService) requireEnabled(op string) error {
	if !s.Enabled() {
		return fserr.Wrap(op, "annotations", "", fserr.ErrDisabled)
	}
	return nil
}

// Annotate replaces the annotations of in.Folder: one per cluster, or one
// per group in group mode. Every image is listed with the sensor row it
// was taken under.
func (s *AnnotationService) Annotate(in AnnotateInput) (AnnotateResult, error) {
	if err := s.requireEnabled("annotate"); err != nil {
		return AnnotateResult{}, err
	}

	cfg := s.layout.Current()
	var fieldErrors []errs.FieldError
	for i, a := range in.Actions {
		if err := cfg.ValidateAction(a.ActionName, a.Params); err != nil {
			fieldErrors = append(fieldErrors, errs.FieldError{Field: fmt.Sprintf("actions[%d]", i), Error: err.Error()})
		}
	}
	if len(fieldErrors) > 0 {
		return AnnotateResult{}, errs.NewBadRequestError("Validation failed", true, nil, fieldErrors, nil)
	}

	contents, err := s.clusters.Contents(in.Folder)
	if err != nil {
		return AnnotateResult{}, err
	}

	actions := in.Actions
	if actions == nil {
		actions = []repository.Action{}
	}
	outputs := repository.AnnotationOutputs{
		Actions:           actions,
		SimpleDescription: in.SimpleDescription,
		OutputVocale:      in.OutputVocale,
	}
	matcher := s.sensors.Matcher()

	var anns []repository.Annotation
	if contents.Mode == repository.ModeGroups {
		for _, g := range contents.Groups {
			anns = append(anns, repository.Annotation{
				Cluster: in.Folder,
				Group:   g.Name,
				Inputs:  s.inputs(matcher, cfg.BaseFolder, g.Images, in.Folder, g.Name),
				Outputs: outputs,
			})
		}
	} else {
		anns = append(anns, repository.Annotation{
			Cluster: in.Folder,
			Inputs:  s.inputs(matcher, cfg.BaseFolder, contents.Images, in.Folder),
			Outputs: outputs,
		})
	}

	total, err := s.annotations.ReplaceCluster(in.Folder, anns)
	if err != nil {
		return AnnotateResult{}, err
	}

	s.logger.Info().
		Str("cluster", in.Folder).
		Int("annotations", len(anns)).
		Int("total", total).
		Msg("cluster annotated")

	return AnnotateResult{
		Message:          fmt.Sprintf("Annotations saved for cluster %q", in.Folder),
		Annotations:      len(anns),
		TotalAnnotations: total,
	}, nil
}

// inputs lists images in name order. img_path is relative to the root
// directory and always uses forward slashes.
func (s *AnnotationService) inputs(matcher timeseries.Matcher, baseFolder string, images []string, dir ...string) []repository.AnnotationInput {
	out := make([]repository.AnnotationInput, 0, len(images))
	for _, img := range images {
		parts := append(append([]string{baseFolder}, dir...), img)
		in := repository.AnnotationInput{ImgPath: path.Join(parts...), Sensors: map[string]string{}}

		if matcher.Loaded() {
			m, ok, err := matcher.Match(img)
			switch {
			case err != nil:
				s.logger.Warn().Err(err).Str("image", in.ImgPath).Msg("no sensor data for image")
			case ok:
				in.Sensors = m.Fields
				ts := m.QueryTimestamp
				in.Timestamp = &ts
			}
		}
		out = append(out, in)
	}
	return out
}

// Annotated reports whether folder already has annotations. It is false
// while annotations are switched off.
func (s *AnnotationService) Annotated(folder string) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	set, err := s.annotations.Annotated()
	if err != nil {
		return false, err
	}
	_, ok := set[folder]
	return ok, nil
}

func (s *AnnotationService) View() (AnnotationsView, error) {
	if err := s.requireEnabled("list"); err != nil {
		return AnnotationsView{}, err
	}
	list, err := s.annotations.List()
	if err != nil {
		return AnnotationsView{}, err
	}
	return AnnotationsView{Annotations: list, ActionParams: s.layout.Current().ActionParams}, nil
}

func (s *AnnotationService) Delete(index int) error {
	if err := s.requireEnabled("delete"); err != nil {
		return err
	}
	err := s.annotations.Delete(index)
	if errors.Is(err, repository.ErrIndexOutOfRange) {
		code := "ANNOTATION_INDEX_OUT_OF_RANGE"
		return errs.NewBadRequestError(fmt.Sprintf("No annotation at index %d", index), true, &code, nil, nil)
	}
	return err
}

func (s *AnnotationService) Clear() error {
	if err := s.requireEnabled("clear"); err != nil {
		return err
	}
	if err := s.annotations.Clear(); err != nil {
		return err
	}
	s.logger.Info().Msg("annotations cleared")
	return nil
}

// Export returns annotations.json as it would be downloaded.
func (s *AnnotationService) Export() ([]byte, error) {
	if err := s.requireEnabled("export"); err != nil {
		return nil, err
	}
	list, err := s.annotations.List()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(list, "", "  ")
}
