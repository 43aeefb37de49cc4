package handler

import (
	"fmt"
	"strings"

	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/validation"
)

// Request payloads. JSON keys follow what the pages send: camelCase for the
// cluster moves, snake_case for annotations and settings.

type EmptyRequest struct{}

func (r *EmptyRequest) Validate() error {
	return nil
}

type ClusterNameParam struct {
	Name string `param:"name" validate:"required,pathsegment"`
}

func (r *ClusterNameParam) Validate() error {
	return validation.Validator().Struct(r)
}

type FolderRequest struct {
	Folder string `json:"folder" validate:"required,pathsegment"`
}

func (r *FolderRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type DescribeRequest struct {
	Folder      string `json:"folder" validate:"required,pathsegment"`
	Description string `json:"description" validate:"required,max=500"`
}

func (r *DescribeRequest) Validate() error {
	r.Description = strings.TrimSpace(r.Description)
	return validation.Validator().Struct(r)
}

// QuickDescriptionRequest removes the quick description when Description is empty.
type QuickDescriptionRequest struct {
	Folder      string `json:"folder" validate:"required,pathsegment"`
	Description string `json:"description" validate:"max=500"`
}

func (r *QuickDescriptionRequest) Validate() error {
	r.Description = strings.TrimSpace(r.Description)
	return validation.Validator().Struct(r)
}

type CreateClusterRequest struct {
	ClusterName string `json:"clusterName" validate:"required,max=200"`
}

func (r *CreateClusterRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type MoveToUndefinedRequest struct {
	Folder string `json:"folder" validate:"required,pathsegment"`
	Item   string `json:"item" validate:"required,pathsegment"`
}

func (r *MoveToUndefinedRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type MoveItemsRequest struct {
	Folder string   `json:"folder" validate:"required,pathsegment"`
	Items  []string `json:"items" validate:"required,min=1,dive,pathsegment"`
}

func (r *MoveItemsRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type MoveToClusterRequest struct {
	SourceFolder string   `json:"sourceFolder" validate:"required,pathsegment"`
	TargetFolder string   `json:"targetFolder" validate:"required,pathsegment"`
	Items        []string `json:"items" validate:"required,min=1,dive,pathsegment"`
}

func (r *MoveToClusterRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type MoveToNewClusterRequest struct {
	SourceFolder   string   `json:"sourceFolder" validate:"required,pathsegment"`
	NewClusterName string   `json:"newClusterName" validate:"required,max=200"`
	Items          []string `json:"items" validate:"required,min=1,dive,pathsegment"`
}

func (r *MoveToNewClusterRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type MergeRequest struct {
	SourceCluster string `json:"sourceCluster" validate:"required,pathsegment"`
	TargetCluster string `json:"targetCluster" validate:"required,pathsegment,nefield=SourceCluster"`
}

func (r *MergeRequest) Validate() error {
	return validation.Validator().Struct(r)
}

// MergeManyRequest merges into TargetCluster, or into the first name when it is empty.
type MergeManyRequest struct {
	ClusterNames  []string `json:"clusterNames" validate:"required,min=2,unique,dive,pathsegment"`
	TargetCluster string   `json:"targetCluster" validate:"omitempty,pathsegment"`
}

func (r *MergeManyRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type AnnotateRequest struct {
	Folder            string              `json:"folder" validate:"required,pathsegment"`
	Actions           []repository.Action `json:"actions" validate:"required,dive"`
	SimpleDescription string              `json:"simple_description" validate:"max=1000"`
	OutputVocale      string              `json:"output_vocale" validate:"max=1000"`
}

// Validate checks the shape. Whether each action fits the configured
// parameter options is up to the annotation service.
func (r *AnnotateRequest) Validate() error {
	if err := validation.Validator().Struct(r); err != nil {
		return err
	}

	var problems validation.CustomValidationErrors
	for i, a := range r.Actions {
		if strings.TrimSpace(a.ActionName) == "" {
			problems = append(problems, validation.CustomValidationError{
				Field:   fmt.Sprintf("actions[%d].action_name", i),
				Message: "is required",
			})
		}
	}
	if len(problems) > 0 {
		return problems
	}
	return nil
}

type DeleteAnnotationRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

func (r *DeleteAnnotationRequest) Validate() error {
	return validation.Validator().Struct(r)
}

// SensorMatchRequest takes filenames from a JSON body or repeated
// ?filename= query parameters.
type SensorMatchRequest struct {
	Filenames []string `json:"filenames" query:"filename" validate:"required,min=1,max=1000,dive,required"`
}

func (r *SensorMatchRequest) Validate() error {
	return validation.Validator().Struct(r)
}

type SensorReloadRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=64"`
}

func (r *SensorReloadRequest) Validate() error {
	if r.Reason == "" {
		r.Reason = "manual"
	}
	return validation.Validator().Struct(r)
}

// SaveSettingsRequest carries a complete settings document. The settings
// store validates it in full; this only catches an empty form early.
type SaveSettingsRequest struct {
	settings.Settings
}

func (r *SaveSettingsRequest) Validate() error {
	if strings.TrimSpace(r.BaseFolder) == "" {
		return validation.CustomValidationErrors{{Field: "base_folder", Message: "is required"}}
	}
	return nil
}
