package service

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReviewQueueAndState(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg", "cluster_2/b.jpg", "cluster_3/c.jpg", "cluster_10/d.jpg")
	clusters := env.clusterService()
	svc := NewReviewService(env.repos, clusters, env.events, env.logger)

	if err := svc.Describe("cluster_1", "lamp on"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Describe("cluster_99", "lamp on"); err != nil {
		t.Fatal(err)
	}
	_ = svc.Describe("cluster_10", "desk")
	if added, err := svc.Skip("cluster_3"); err != nil || !added {
		t.Fatalf("Skip() = %v, %v", added, err)
	}
	if added, _ := svc.Skip("cluster_3"); added {
		t.Error("second Skip() reported true")
	}

	queue, err := svc.Queue()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"cluster_2"}, queue); diff != "" {
		t.Errorf("Queue() mismatch (-want +got):\n%s", diff)
	}

	state, err := svc.State()
	if err != nil {
		t.Fatal(err)
	}
	if state.Total != 4 || state.Done != 3 || state.Remaining != 1 {
		t.Errorf("counters = total %d, done %d, remaining %d", state.Total, state.Done, state.Remaining)
	}
	if state.Cluster == nil || state.Cluster.Name != "cluster_2" {
		t.Fatalf("next cluster = %+v", state.Cluster)
	}
	if diff := cmp.Diff([]string{"lamp on", "desk"}, state.TopDescriptions); diff != "" {
		t.Errorf("top descriptions mismatch (-want +got):\n%s", diff)
	}

	if removed, _ := svc.Unskip("cluster_3"); !removed {
		t.Error("Unskip() reported false")
	}
	queue, _ = svc.Queue()
	if diff := cmp.Diff([]string{"cluster_2", "cluster_3"}, queue); diff != "" {
		t.Errorf("Queue() after unskip mismatch (-want +got):\n%s", diff)
	}
}

func TestReviewStateWhenEverythingIsDone(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg")
	svc := NewReviewService(env.repos, env.clusterService(), env.events, env.logger)

	_, _ = svc.Skip("cluster_1")
	state, err := svc.State()
	if err != nil {
		t.Fatal(err)
	}
	if state.Cluster != nil || state.Remaining != 0 || state.Done != 1 {
		t.Errorf("State() = %+v", state)
	}
	if state.TopDescriptions == nil {
		t.Error("top descriptions should be an empty list, not null")
	}
}

func TestQuickDescriptionRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	env.touch(t, "cluster_1/a.jpg")
	clusters := env.clusterService()
	svc := NewReviewService(env.repos, clusters, env.events, env.logger)

	_ = svc.SaveQuickDescription("cluster_1", `bed "left", lamp`)
	view, _ := clusters.View("cluster_1")
	if view.QuickDescription != `bed "left", lamp` {
		t.Errorf("quick description = %q", view.QuickDescription)
	}

	_ = svc.SaveQuickDescription("cluster_1", "")
	view, _ = clusters.View("cluster_1")
	if view.QuickDescription != "" {
		t.Errorf("quick description not removed: %q", view.QuickDescription)
	}
}
