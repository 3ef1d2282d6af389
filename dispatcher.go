package account

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultDispatcherWorkers = 4
	DefaultDispatcherBuffer  = 256
	DefaultTaskTimeout       = 30 * time.Second
)

type queuedTask struct {
	name string
	run  Task
}

// Dispatcher runs notification tasks on a fixed worker pool. Tasks are
// fire and forget: failures are logged, a full buffer drops the task.
type Dispatcher struct {
	tasks   chan queuedTask
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTaskTimeout bounds each task run.
func WithTaskTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher starts workers goroutines reading from a buffer of the
// given size. Non positive values fall back to the defaults.
func NewDispatcher(workers, buffer int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = DefaultDispatcherWorkers
	}
	if buffer <= 0 {
		buffer = DefaultDispatcherBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		tasks:   make(chan queuedTask, buffer),
		timeout: DefaultTaskTimeout,
		logger:  defLogger{},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Submit enqueues task without blocking.
func (d *Dispatcher) Submit(name string, task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping task %s", name)
		return false
	}

	select {
	case d.tasks <- queuedTask{name: name, run: task}:
		return true
	default:
		d.logger.Warn("dispatcher queue full, dropping task %s", name)
		return false
	}
}

// Close stops accepting tasks and waits for queued ones. When ctx ends
// first, running tasks get their context cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.run(task)
	}
}

func (d *Dispatcher) run(task queuedTask) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	if err := safeRun(ctx, task.run); err != nil {
		d.logger.Error("task %s failed: %v", task.name, err)
	}
}

// asyncQueue runs every task on its own goroutine. It is the fallback
// when no dispatcher is configured, so callers never wait on delivery.
type asyncQueue struct {
	logger Logger
}

func (q asyncQueue) Submit(name string, task Task) bool {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTaskTimeout)
		defer cancel()

		if err := safeRun(ctx, task); err != nil {
			q.logger.Error("task %s failed: %v", name, err)
		}
	}()
	return true
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
