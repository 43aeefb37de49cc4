package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/lib/events"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
)

type fakeReloader struct {
	calls atomic.Int32
	errs  []error
}

func (f *fakeReloader) Reload(ctx context.Context) (timeseries.LoadStats, error) {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return timeseries.LoadStats{}, f.errs[n]
	}
	return timeseries.LoadStats{Valid: 7}, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
	done  chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{done: make(chan struct{}, 8)}
}

func (p *recordingPublisher) Publish(eventType string, _ any) {
	p.mu.Lock()
	p.types = append(p.types, eventType)
	p.mu.Unlock()
	p.done <- struct{}{}
}

func (p *recordingPublisher) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func startService(t *testing.T, reloader SensorReloader, pub events.Publisher) *JobService {
	t.Helper()
	j := NewJobService(nil, Options{RetryDelay: time.Millisecond})
	j.InitHandlers(reloader, pub)
	if err := j.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(j.Stop)
	return j
}

func TestSensorsReloadPublishesSuccess(t *testing.T) {
	reloader := &fakeReloader{}
	pub := newRecordingPublisher()
	j := startService(t, reloader, pub)

	task, _ := NewSensorsReloadTask("test")
	if err := j.Enqueue(task); err != nil {
		t.Fatal(err)
	}

	if got := pub.wait(t, 1); got[0] != events.SensorsReloaded {
		t.Fatalf("events = %v", got)
	}
}

func TestSensorsReloadRetriesOnce(t *testing.T) {
	reloader := &fakeReloader{errs: []error{errors.New("disk"), nil}}
	pub := newRecordingPublisher()
	j := startService(t, reloader, pub)

	task, _ := NewSensorsReloadTask("test")
	_ = j.Enqueue(task)

	got := pub.wait(t, 2)
	if got[0] != events.SensorsReloadFailed || got[1] != events.SensorsReloaded {
		t.Fatalf("events = %v", got)
	}
	if reloader.calls.Load() != 2 {
		t.Fatalf("calls = %d", reloader.calls.Load())
	}
}

func TestSensorsReloadInProgressIsNotRetried(t *testing.T) {
	reloader := &fakeReloader{errs: []error{timeseries.ErrReloadInProgress}}
	pub := newRecordingPublisher()
	j := startService(t, reloader, pub)

	task, _ := NewSensorsReloadTask("test")
	_ = j.Enqueue(task)

	pub.wait(t, 1)
	j.Stop()
	if reloader.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", reloader.calls.Load())
	}
}

func TestEnqueueErrors(t *testing.T) {
	j := NewJobService(nil, Options{QueueSize: 1})
	task, _ := NewSensorsReloadTask("test")

	if err := j.Enqueue(task); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("before start: %v", err)
	}

	block := make(chan struct{})
	j.Mux().HandleFunc(TaskSensorsReload, func(ctx context.Context, _ *Task) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	if err := j.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		close(block)
		j.Stop()
	}()

	if err := j.Enqueue(NewTask("unknown", nil)); err == nil {
		t.Fatal("unknown task type accepted")
	}

	// One task occupies the worker, one fills the queue.
	_ = j.Enqueue(task)
	deadline := time.Now().Add(2 * time.Second)
	for len(j.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never picked up the first task")
		}
		time.Sleep(time.Millisecond)
	}
	if err := j.Enqueue(task); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if err := j.Enqueue(task); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third enqueue: %v", err)
	}
}
