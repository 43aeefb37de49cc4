package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/fserr"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/google/go-cmp/cmp"
)

func strPtr(s string) *string { return &s }

func TestAnnotateSingleMode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.loadSensors(t)
	env.touch(t, "cluster_1/03-07_15-00-00.jpg", "cluster_1/03-07_14-01-00.jpg")
	svc := NewAnnotationService(env.repos, env.settings, env.sensors, env.logger)

	res, err := svc.Annotate(AnnotateInput{
		Folder:            "cluster_1",
		Actions:           []repository.Action{{ActionName: "turn_on", Params: []string{"camera", "lamp"}}},
		SimpleDescription: "lamp on",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Annotations != 1 || res.TotalAnnotations != 1 {
		t.Errorf("Annotate() = %+v", res)
	}

	view, err := svc.View()
	if err != nil {
		t.Fatal(err)
	}
	want := []repository.AnnotationInput{
		{
			ImgPath:   "clusters/cluster_1/03-07_14-01-00.jpg",
			Sensors:   map[string]string{"light.lamp": "on", "light.bed": "off"},
			Timestamp: strPtr("2024-07-03 14:01:00.000000"),
		},
		{
			ImgPath: "clusters/cluster_1/03-07_15-00-00.jpg",
			Sensors: map[string]string{},
		},
	}
	if diff := cmp.Diff(want, view.Annotations[0].Inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
	if view.Annotations[0].Outputs.SimpleDescription != "lamp on" || view.Annotations[0].Group != "" {
		t.Errorf("annotation = %+v", view.Annotations[0])
	}

	if ok, err := svc.Annotated("cluster_1"); err != nil || !ok {
		t.Errorf("Annotated(cluster_1) = %v, %v", ok, err)
	}
	if ok, _ := svc.Annotated("cluster_2"); ok {
		t.Error("Annotated(cluster_2) = true")
	}
}

func TestAnnotateGroupModeReplaces(t *testing.T) {
	env := newTestEnv(t, func(s *settings.Settings) { s.GroupMode = true })
	env.touch(t, "cluster_1/g1/a.jpg", "cluster_1/g2/b.jpg", "cluster_2/g1/c.jpg")
	svc := NewAnnotationService(env.repos, env.settings, env.sensors, env.logger)

	if _, err := svc.Annotate(AnnotateInput{Folder: "cluster_2", Actions: []repository.Action{}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Annotate(AnnotateInput{Folder: "cluster_1", Actions: []repository.Action{}, OutputVocale: "first"}); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Annotate(AnnotateInput{Folder: "cluster_1", Actions: []repository.Action{}, OutputVocale: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Annotations != 2 || res.TotalAnnotations != 3 {
		t.Errorf("Annotate() = %+v", res)
	}

	view, _ := svc.View()
	var groups []string
	for _, a := range view.Annotations {
		if a.Cluster == "cluster_1" {
			groups = append(groups, a.Group)
			if a.Outputs.OutputVocale != "second" {
				t.Errorf("stale annotation kept: %+v", a)
			}
		}
	}
	if diff := cmp.Diff([]string{"g1", "g2"}, groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
	if got := view.Annotations[1].Inputs[0].ImgPath; got != "clusters/cluster_1/g1/a.jpg" {
		t.Errorf("img_path = %q", got)
	}
}

func TestAnnotateRejectsBadActions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg")
	svc := NewAnnotationService(env.repos, env.settings, env.sensors, env.logger)

	_, err := svc.Annotate(AnnotateInput{
		Folder: "cluster_1",
		Actions: []repository.Action{
			{ActionName: "turn_on", Params: []string{"camera"}},
			{ActionName: "dance"},
			{ActionName: "turn_off_all", Params: []string{"camera", "lamp"}},
		},
	})

	var he *errs.HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	var fields []string
	for _, fe := range he.Errors {
		fields = append(fields, fe.Field)
	}
	if diff := cmp.Diff([]string{"actions[1]", "actions[2]"}, fields); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.Annotate(AnnotateInput{Folder: "cluster_404", Actions: []repository.Action{}}); fserr.ErrCode(err) != fserr.NotExist {
		t.Errorf("missing cluster: err = %v", err)
	}
}

func TestAnnotationsDisabled(t *testing.T) {
	env := newTestEnv(t, func(s *settings.Settings) { s.AnnotationsEnabled = false })
	svc := NewAnnotationService(env.repos, env.settings, env.sensors, env.logger)

	checks := map[string]error{}
	_, checks["annotate"] = svc.Annotate(AnnotateInput{Folder: "cluster_1"})
	_, checks["view"] = svc.View()
	checks["delete"] = svc.Delete(0)
	checks["clear"] = svc.Clear()
	_, checks["export"] = svc.Export()

	for op, err := range checks {
		if fserr.ErrCode(err) != fserr.Disabled {
			t.Errorf("%s: err = %v, want disabled", op, err)
		}
	}

	if ok, err := svc.Annotated("cluster_1"); ok || err != nil {
		t.Errorf("Annotated() = %v, %v while disabled", ok, err)
	}
}

func TestAnnotationDeleteClearExport(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg", "cluster_2/b.jpg")
	svc := NewAnnotationService(env.repos, env.settings, env.sensors, env.logger)

	_, _ = svc.Annotate(AnnotateInput{Folder: "cluster_1", Actions: []repository.Action{}})
	_, _ = svc.Annotate(AnnotateInput{Folder: "cluster_2", Actions: []repository.Action{}})

	err := svc.Delete(5)
	var he *errs.HTTPError
	if !errors.As(err, &he) || he.Code != "ANNOTATION_INDEX_OUT_OF_RANGE" {
		t.Fatalf("Delete(5) = %v", err)
	}
	if err := svc.Delete(0); err != nil {
		t.Fatal(err)
	}

	data, err := svc.Export()
	if err != nil {
		t.Fatal(err)
	}
	var exported []repository.Annotation
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatal(err)
	}
	if len(exported) != 1 || exported[0].Cluster != "cluster_2" {
		t.Errorf("exported = %+v", exported)
	}

	if err := svc.Clear(); err != nil {
		t.Fatal(err)
	}
	view, _ := svc.View()
	if len(view.Annotations) != 0 {
		t.Errorf("Clear() left %d annotations", len(view.Annotations))
	}
}
