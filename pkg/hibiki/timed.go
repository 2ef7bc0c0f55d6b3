package hibiki

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TimedEmitter splits subscribers into an immediate set, invoked
// synchronously on Emit in subscription order, and a delayed set, each
// invoked asynchronously after its own interval. Delayed dispatch is
// fire-and-forget: there are no handles, no cancellation, and no way to
// await completion. By default every delayed invocation runs on its own
// detached goroutine, so nothing bounds how many may be pending at once
// under sustained emitting; attach a Dispatcher with WithRunner to bound
// and drain delayed work instead.
type TimedEmitter[T any] struct {
	mu        sync.Mutex
	immediate []Handler[T]
	delayed   []delayedEntry[T]
	cfg       config
}

// delayedEntry pairs a handler with its dispatch delay.
type delayedEntry[T any] struct {
	fn    Handler[T]
	delay time.Duration
}

// NewTimedEmitter creates an empty delayed dispatch emitter.
func NewTimedEmitter[T any](opts ...Option) *TimedEmitter[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &TimedEmitter[T]{cfg: cfg}
}

// Subscribe registers fn for synchronous dispatch on every Emit. Safe for
// concurrent use. A nil handler is a usage fault and panics.
func (m *TimedEmitter[T]) Subscribe(fn Handler[T]) {
	if fn == nil {
		panic("hibiki: nil handler")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.immediate = append(m.immediate, fn)
}

// SubscribeDelayed registers fn for asynchronous dispatch delay after
// every Emit. A negative delay is normalized to zero; the handler still
// runs on the asynchronous path.
func (m *TimedEmitter[T]) SubscribeDelayed(fn Handler[T], delay time.Duration) {
	if fn == nil {
		panic("hibiki: nil handler")
	}
	if delay < 0 {
		delay = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.delayed = append(m.delayed, delayedEntry[T]{fn: fn, delay: delay})
}

// Emit invokes every immediate handler synchronously, then schedules one
// asynchronous task per delayed handler, each firing no earlier than its
// configured delay after this call. Both lists are snapshotted before any
// handler runs, so handlers may re-enter the emitter without deadlocking.
// Emit does not wait for delayed work.
func (m *TimedEmitter[T]) Emit(v T) {
	m.mu.Lock()
	immediate := append([]Handler[T](nil), m.immediate...)
	delayed := append([]delayedEntry[T](nil), m.delayed...)
	m.mu.Unlock()

	for _, fn := range immediate {
		fn(v)
	}

	for idx, sub := range delayed {
		m.scheduleDelayed(idx, sub, v)
	}
}

// scheduleDelayed starts one delayed invocation, detached or through the
// configured runner. The timer starts here, inside Emit, so the delay is
// measured from the emit and not from task startup. Panics and scheduling
// failures are confined to the task and routed to the async error sink.
func (m *TimedEmitter[T]) scheduleDelayed(idx int, sub delayedEntry[T], v T) {
	timer := m.cfg.clock.Timer(sub.delay)
	scope := fmt.Sprintf("delayed handler %d", idx)

	task := func(ctx context.Context) {
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}

		if err := runSafely(scope, func() error {
			sub.fn(v)
			return nil
		}); err != nil {
			m.cfg.onAsyncError(ctx, scope, err)
		}
	}

	if m.cfg.runner != nil {
		if err := m.cfg.runner.TrySubmit(context.Background(), scope, task); err != nil {
			timer.Stop()
			m.cfg.onAsyncError(context.Background(), scope, fmt.Errorf("schedule delayed dispatch: %w", err))
		}
		return
	}

	go task(context.Background())
}
