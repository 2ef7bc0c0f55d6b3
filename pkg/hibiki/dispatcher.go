package hibiki

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Runner executes delayed dispatch tasks on behalf of a TimedEmitter.
type Runner interface {
	// TrySubmit starts task without blocking. It reports ErrTaskRejected
	// when no slot is free and ErrRunnerClosed after shutdown.
	TrySubmit(ctx context.Context, scope string, task func(context.Context)) error
}

// Dispatcher is a bounded task runner: at most capacity tasks run
// concurrently, every task receives a context that Close cancels, and
// Close waits for in-flight tasks to finish. It is the bounded,
// cancellable replacement for detached per-task goroutines.
type Dispatcher struct {
	cfg    config
	slots  *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher running at most capacity tasks
// concurrently. Capacity values below one are raised to one.
func NewDispatcher(capacity int64, opts ...Option) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		cfg:    cfg,
		slots:  semaphore.NewWeighted(capacity),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit blocks until a slot frees, the caller context ends, or the
// dispatcher closes, then runs task on a tracked goroutine. The context
// handed to the task is cancelled when the dispatcher closes.
func (d *Dispatcher) Submit(ctx context.Context, scope string, task func(context.Context)) error {
	if task == nil {
		return fmt.Errorf("submit %s: nil task", scope)
	}

	acquireCtx, stop := context.WithCancel(ctx)
	defer stop()
	unregister := context.AfterFunc(d.ctx, stop)
	defer unregister()

	if err := d.slots.Acquire(acquireCtx, 1); err != nil {
		if d.ctx.Err() != nil {
			return fmt.Errorf("submit %s: %w", scope, ErrRunnerClosed)
		}
		return fmt.Errorf("submit %s: %w", scope, err)
	}

	if err := d.track(); err != nil {
		d.slots.Release(1)
		return fmt.Errorf("submit %s: %w", scope, err)
	}

	go d.runTask(scope, task)

	return nil
}

// TrySubmit starts task without blocking, reporting ErrTaskRejected when
// the dispatcher is saturated and ErrRunnerClosed after shutdown.
func (d *Dispatcher) TrySubmit(ctx context.Context, scope string, task func(context.Context)) error {
	if task == nil {
		return fmt.Errorf("try submit %s: nil task", scope)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("try submit %s: %w", scope, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("try submit %s: %w", scope, ErrRunnerClosed)
	}
	if !d.slots.TryAcquire(1) {
		return fmt.Errorf("try submit %s: %w", scope, ErrTaskRejected)
	}
	d.wg.Add(1)

	go d.runTask(scope, task)

	return nil
}

// Close stops admission, cancels the context handed to tasks, and waits
// for in-flight tasks to finish or the supplied context to expire.
// Subsequent calls return nil immediately.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close dispatcher: %w", ctx.Err())
	}
}

// track registers one task with the wait group unless the dispatcher
// already closed. The closed check and the Add share the mutex so Close
// can never start waiting between them.
func (d *Dispatcher) track() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrRunnerClosed
	}
	d.wg.Add(1)

	return nil
}

// runTask executes one task with panic confinement and releases its slot.
func (d *Dispatcher) runTask(scope string, task func(context.Context)) {
	defer d.wg.Done()
	defer d.slots.Release(1)

	if err := runSafely(scope, func() error {
		task(d.ctx)
		return nil
	}); err != nil {
		d.cfg.onAsyncError(d.ctx, scope, err)
	}
}

var _ Runner = (*Dispatcher)(nil)
