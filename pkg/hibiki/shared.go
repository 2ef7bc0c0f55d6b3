package hibiki

import (
	"sync"
)

// SharedEmitter is the goroutine-safe managed emitter. A single mutex
// guards the entry store, the id allocator, and the compaction flag; Emit
// compacts and snapshots the active entries under the lock and releases it
// before any handler runs. Handlers may therefore freely Subscribe, Cancel,
// and Emit on the same emitter without deadlocking, and a recursive Emit
// dispatches against its own fresh snapshot.
type SharedEmitter[T any] struct {
	mu    sync.Mutex
	store entryStore[T]
}

// NewSharedEmitter creates an empty goroutine-safe managed emitter.
func NewSharedEmitter[T any]() *SharedEmitter[T] {
	return &SharedEmitter[T]{}
}

// Subscribe registers fn and returns the Subscription that detaches it.
// Safe for concurrent use. A nil handler is a usage fault and panics.
func (m *SharedEmitter[T]) Subscribe(fn Handler[T]) Subscription {
	if fn == nil {
		panic("hibiki: nil handler")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return Subscription{owner: m, id: m.store.add(fn)}
}

// Emit dispatches v to the entries captured in a snapshot taken under the
// lock, in subscription order, with the lock released while handlers run.
// A snapshot holds entries by pointer, so an entry stays valid to invoke
// even if another goroutine cancels it and a racing pass compacts it out
// of the live store; its active flag is re-checked just before invocation
// so an entry cancelled before its turn is skipped.
func (m *SharedEmitter[T]) Emit(v T) {
	m.mu.Lock()
	m.store.compact()
	snapshot := m.store.snapshotActive()
	m.mu.Unlock()

	for _, e := range snapshot {
		if !e.active.Load() {
			continue
		}
		e.fn(v)
	}
}

// Len reports the number of active subscriptions.
func (m *SharedEmitter[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.countActive()
}

// unsubscribe tombstones the entry under the lock; the next Emit removes it.
func (m *SharedEmitter[T]) unsubscribe(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.deactivate(id)
}
