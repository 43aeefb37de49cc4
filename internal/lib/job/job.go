// Package job provides background job processing for the reviewer.
//
// Jobs run in-process: a JobService owns a bounded queue and a small pool of
// workers, and a ServeMux routes each task type to its handler.
//   - You enqueue tasks (producer) with JobService.Enqueue.
//   - Workers started by JobService.Start pull tasks and run their handler.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue has no room.
	ErrQueueFull = errors.New("job queue is full")

	// ErrNotRunning is returned by Enqueue before Start or after Stop.
	ErrNotRunning = errors.New("job service is not running")

	// ErrSkipRetry can be wrapped by a handler to fail a task without retries.
	ErrSkipRetry = errors.New("skip retry")
)

// Task is a unit of work. Payload is opaque to the service; handlers decode it.
type Task struct {
	typ      string
	payload  []byte
	maxRetry int
	timeout  time.Duration
}

// Option configures a Task.
type Option func(*Task)

// MaxRetry sets how many times a failed task is retried.
func MaxRetry(n int) Option {
	return func(t *Task) { t.maxRetry = n }
}

// Timeout bounds a single attempt.
func Timeout(d time.Duration) Option {
	return func(t *Task) { t.timeout = d }
}

func NewTask(typ string, payload []byte, opts ...Option) *Task {
	t := &Task{typ: typ, payload: payload, timeout: 30 * time.Second}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Task) Type() string    { return t.typ }
func (t *Task) Payload() []byte { return t.payload }

// HandlerFunc processes one task.
type HandlerFunc func(ctx context.Context, t *Task) error

// ServeMux routes task types to handlers.
type ServeMux struct {
	handlers map[string]HandlerFunc
}

func NewServeMux() *ServeMux {
	return &ServeMux{handlers: make(map[string]HandlerFunc)}
}

func (m *ServeMux) HandleFunc(typ string, fn HandlerFunc) {
	m.handlers[typ] = fn
}

// Options size the worker pool.
type Options struct {
	Concurrency int
	QueueSize   int
	RetryDelay  time.Duration
}

// JobService runs tasks on background workers.
type JobService struct {
	queue chan *Task
	mux   *ServeMux
	opts  Options

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *zerolog.Logger
}

// NewJobService creates a stopped service. Register handlers on Mux, then Start.
func NewJobService(logger *zerolog.Logger, opts Options) *JobService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &JobService{
		queue:  make(chan *Task, opts.QueueSize),
		mux:    NewServeMux(),
		opts:   opts,
		logger: logger,
	}
}

// Mux returns the router handlers are registered on.
func (j *JobService) Mux() *ServeMux {
	return j.mux
}

// Start launches the workers and returns immediately.
func (j *JobService) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return errors.New("job service already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.running = true

	for i := 0; i < j.opts.Concurrency; i++ {
		j.wg.Add(1)
		go j.work(ctx)
	}

	j.logger.Info().Int("concurrency", j.opts.Concurrency).Msg("Starting background job server")
	return nil
}

// Enqueue queues t without blocking.
func (j *JobService) Enqueue(t *Task) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.running {
		return ErrNotRunning
	}
	if _, ok := j.mux.handlers[t.typ]; !ok {
		return fmt.Errorf("no handler registered for task %q", t.typ)
	}

	select {
	case j.queue <- t:
		j.logger.Debug().Str("type", t.typ).Msg("task enqueued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels running tasks and waits for the workers to return.
// Tasks still queued are dropped.
func (j *JobService) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.cancel()
	j.mu.Unlock()

	j.logger.Info().Msg("Stopping background job server")
	j.wg.Wait()
}

func (j *JobService) work(ctx context.Context) {
	defer j.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-j.queue:
			j.process(ctx, t)
		}
	}
}

func (j *JobService) process(ctx context.Context, t *Task) {
	handler := j.mux.handlers[t.typ]

	for attempt := 0; ; attempt++ {
		err := j.run(ctx, handler, t)
		if err == nil {
			return
		}

		log := j.logger.Error().Err(err).Str("type", t.typ).Int("attempt", attempt+1)
		if errors.Is(err, ErrSkipRetry) || attempt >= t.maxRetry || ctx.Err() != nil {
			log.Msg("task failed")
			return
		}
		log.Msg("task failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(j.opts.RetryDelay):
		}
	}
}

func (j *JobService) run(ctx context.Context, handler HandlerFunc, t *Task) (err error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: task panicked: %v", ErrSkipRetry, r)
		}
	}()

	return handler(ctx, t)
}
