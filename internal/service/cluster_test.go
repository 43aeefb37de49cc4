package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestClusterViewWithSensors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.loadSensors(t)
	env.touch(t, "cluster_1/03-07_14-01-00.jpg", "cluster_1/03-07_15-00-00.jpg", "cluster_1/holiday.jpg")
	_ = env.repos.QuickDescriptions.Save("cluster_1", "lamp")

	view, err := env.clusterService().View("cluster_1")
	if err != nil {
		t.Fatal(err)
	}

	if !view.SensorsLoaded || view.ItemCount != 3 || view.QuickDescription != "lamp" {
		t.Fatalf("View() = %+v", view)
	}

	matched := view.Images[0]
	if matched.Sensors == nil {
		t.Fatalf("%s has no sensor row", matched.Name)
	}
	want := map[string]string{"light.lamp": "on", "light.bed": "off"}
	if diff := cmp.Diff(want, matched.Sensors.Fields); diff != "" {
		t.Errorf("sensor fields mismatch (-want +got):\n%s", diff)
	}
	if matched.URL != "/clusters/cluster_1/03-07_14-01-00.jpg" {
		t.Errorf("url = %q", matched.URL)
	}

	if far := view.Images[1]; far.Sensors != nil || far.SensorError != "" {
		t.Errorf("image outside tolerance = %+v", far)
	}
	if bad := view.Images[2]; bad.Sensors != nil || bad.SensorError == "" {
		t.Errorf("malformed image = %+v", bad)
	}
}

func TestClusterViewUsesOneDatasetDuringReloads(t *testing.T) {
	env := newTestEnv(t, nil)

	var logs [2]string
	for i, v := range []string{"A", "B"} {
		var b strings.Builder
		b.WriteString("timestamp,v\n")
		for m := 0; m <= 5; m++ {
			fmt.Fprintf(&b, "2024-07-03 14:%02d:00,%s\n", m, v)
		}
		logs[i] = b.String()
	}

	var flip atomic.Int64
	env.sensors = timeseries.NewStore(timeseries.StoreOptions{
		Source: func() (timeseries.Source, error) {
			name := fmt.Sprintf("/sensors_%d.csv", flip.Add(1)%2)
			return timeseries.NewCSVSource(env.fs, name), nil
		},
		Loader:     timeseries.NewLoader(time.UTC, env.logger),
		Normalizer: timeseries.NewNormalizer(2024, time.UTC),
		Logger:     env.logger,
	})
	for i, content := range logs {
		if err := afero.WriteFile(env.fs, fmt.Sprintf("/sensors_%d.csv", i), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.sensors.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	var images []string
	for i := 0; i < 300; i++ {
		images = append(images, fmt.Sprintf("cluster_1/03-07_14-%02d-%02d.jpg", i/60, i%60))
	}
	env.touch(t, images...)

	done := make(chan struct{})
	var wg sync.WaitGroup
	t.Cleanup(func() {
		close(done)
		wg.Wait()
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_, _ = env.sensors.Reload(context.Background())
			}
		}
	}()

	svc := env.clusterService()
	for round := 0; round < 100; round++ {
		view, err := svc.View("cluster_1")
		if err != nil {
			t.Fatal(err)
		}

		seen := map[string]int{}
		for _, img := range view.Images {
			if img.Sensors == nil {
				t.Fatalf("round %d: %s has no sensor row", round, img.Name)
			}
			seen[img.Sensors.Fields["v"]]++
		}
		if len(seen) != 1 {
			t.Fatalf("round %d: one view joined against several datasets: %v", round, seen)
		}
	}
}

func TestClusterViewWithoutSensors(t *testing.T) {
	env := newTestEnv(t, func(s *settings.Settings) { s.GroupMode = true })
	env.touch(t, "cluster_1/g1/03-07_14-01-00.jpg", "cluster_1/g2/holiday.jpg")

	view, err := env.clusterService().View("cluster_1")
	if err != nil {
		t.Fatal(err)
	}
	if view.SensorsLoaded || view.Mode != repository.ModeGroups || len(view.Groups) != 2 || view.ItemCount != 2 {
		t.Fatalf("View() = %+v", view)
	}
	for _, g := range view.Groups {
		for _, img := range g.Images {
			if img.Sensors != nil || img.SensorError != "" {
				t.Errorf("sensor lookup ran without a sensor log: %+v", img)
			}
		}
	}
}

func TestClusterMoves(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg", "cluster_1/b.jpg", "cluster_new/c.jpg")
	svc := env.clusterService()

	if _, err := svc.MoveToNewCluster("cluster_1", "new", []string{"a.jpg"}); httpStatus(err) != http.StatusConflict {
		t.Errorf("moving into an existing cluster as new: err = %v", err)
	}
	if _, err := svc.MoveToCluster("cluster_1", repository.CreateNewCluster, []string{"a.jpg"}); httpStatus(err) != http.StatusBadRequest {
		t.Errorf("moving into the create-new placeholder: err = %v", err)
	}

	res, err := svc.MoveToNewCluster("cluster_1", "lamp on", []string{"a.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.NewClusterCreated || res.TargetCluster != "cluster_lamp_on" {
		t.Errorf("MoveToNewCluster() = %+v", res)
	}

	if _, err := svc.MoveToCluster("cluster_1", "cluster_new", []string{"b.jpg"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MoveToUndefined("cluster_1", []string{"b.jpg"}); httpStatus(err) != http.StatusNotFound {
		t.Errorf("moving an image that is gone: err = %v", err)
	}

	if got := env.events.count(events.ClustersChanged); got != 2 {
		t.Errorf("published %d cluster events, want 2", got)
	}
}

func TestClusterMergeMany(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg", "cluster_2/b.jpg")
	svc := env.clusterService()

	if _, err := svc.MergeMany([]string{"cluster_1"}, ""); httpStatus(err) != http.StatusBadRequest {
		t.Errorf("merging one cluster: err = %v", err)
	}

	res, err := svc.MergeMany([]string{"cluster_1", "cluster_2"}, "cluster_2")
	if err != nil {
		t.Fatal(err)
	}
	if res.TargetCluster != "cluster_2" || res.Moved != 1 {
		t.Errorf("MergeMany() = %+v", res)
	}
	if env.events.count(events.ClustersChanged) != 1 {
		t.Error("merge not published")
	}
}

func TestClusterNextNumberAndOverview(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg", "cluster_4/b.jpg")
	_ = env.fs.MkdirAll("/clusters/cluster_9", 0o755)
	svc := env.clusterService()

	next, err := svc.NextNumber()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(NextClusterNumber{NextNumber: 10, SuggestedName: "cluster_10"}, next); diff != "" {
		t.Errorf("NextNumber() mismatch (-want +got):\n%s", diff)
	}

	ov, err := svc.Overview()
	if err != nil {
		t.Fatal(err)
	}
	if !ov.BaseExists || len(ov.Clusters) != 2 || ov.Settings.BaseFolder != "clusters" {
		t.Errorf("Overview() = %+v", ov)
	}

	stats, err := svc.AllStats()
	if err != nil || len(stats) != 3 {
		t.Errorf("AllStats() = %v, %v", stats, err)
	}

	names, err := svc.Names()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"cluster_1", "cluster_4", "cluster_9"}, names); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}
