package handler

import (
	"errors"
	"testing"

	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/validation"
	"github.com/go-playground/validator/v10"
)

func TestRequestValidation(t *testing.T) {
	zero, five := 0, 5

	tests := []struct {
		name  string
		req   validation.Validatable
		valid bool
	}{
		{"describe", &DescribeRequest{Folder: "cluster_1", Description: "lamp on"}, true},
		{"describe blank", &DescribeRequest{Folder: "cluster_1", Description: "   "}, false},
		{"describe escaping folder", &DescribeRequest{Folder: "../x", Description: "x"}, false},
		{"quick description removal", &QuickDescriptionRequest{Folder: "cluster_1"}, true},
		{"move one", &MoveToUndefinedRequest{Folder: "cluster_1", Item: "a.jpg"}, true},
		{"move nested item", &MoveToUndefinedRequest{Folder: "cluster_1", Item: "a/b.jpg"}, false},
		{"move none", &MoveItemsRequest{Folder: "cluster_1", Items: []string{}}, false},
		{"merge into itself", &MergeRequest{SourceCluster: "cluster_1", TargetCluster: "cluster_1"}, false},
		{"merge many", &MergeManyRequest{ClusterNames: []string{"cluster_1", "cluster_2"}}, true},
		{"merge many duplicates", &MergeManyRequest{ClusterNames: []string{"cluster_1", "cluster_1"}}, false},
		{"delete index zero", &DeleteAnnotationRequest{Index: &zero}, true},
		{"delete index missing", &DeleteAnnotationRequest{}, false},
		{"delete index five", &DeleteAnnotationRequest{Index: &five}, true},
		{"match nothing", &SensorMatchRequest{}, false},
		{"match empty name", &SensorMatchRequest{Filenames: []string{""}}, false},
		{"annotate", &AnnotateRequest{Folder: "cluster_1", Actions: []repository.Action{{ActionName: "turn_on"}}}, true},
		{"annotate unnamed action", &AnnotateRequest{Folder: "cluster_1", Actions: []repository.Action{{ActionName: " "}}}, false},
		{"settings without base folder", &SaveSettingsRequest{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err == nil) != tt.valid {
				t.Fatalf("Validate() = %v, want valid=%v", err, tt.valid)
			}
		})
	}
}

func TestRequestValidationErrorKinds(t *testing.T) {
	var tagged validator.ValidationErrors
	if err := (&MoveItemsRequest{}).Validate(); !errors.As(err, &tagged) {
		t.Fatalf("tag failure returned %T", err)
	}

	var custom validation.CustomValidationErrors
	err := (&AnnotateRequest{Folder: "cluster_1", Actions: []repository.Action{{}, {ActionName: "turn_on"}, {}}}).Validate()
	if !errors.As(err, &custom) || len(custom) != 2 || custom[1].Field != "actions[2].action_name" {
		t.Fatalf("custom errors = %v", err)
	}
}

func TestRequestNormalisation(t *testing.T) {
	d := &DescribeRequest{Folder: "cluster_1", Description: "  lamp on \n"}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
	if d.Description != "lamp on" {
		t.Errorf("description = %q", d.Description)
	}

	r := &SensorReloadRequest{}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	if r.Reason != "manual" {
		t.Errorf("reason = %q", r.Reason)
	}
}

func TestFreshRequest(t *testing.T) {
	shared := &MoveItemsRequest{Folder: "cluster_1", Items: []string{"a.jpg"}}

	got := freshRequest(shared)
	if got == shared {
		t.Fatal("request struct reused")
	}
	if got.Folder != "" || got.Items != nil {
		t.Fatalf("fresh request carries data: %+v", got)
	}
}
