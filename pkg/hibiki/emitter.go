package hibiki

// Emitter is the managed emitter: Subscribe returns a revocable
// Subscription, cancelled entries are tombstoned and physically removed by
// a compaction pass at the start of the next Emit, and dispatch runs in
// ascending subscription order. It carries no locking; callers confine an
// Emitter to one goroutine or serialize access externally, Subscription
// cancellation included. SharedEmitter is the goroutine-safe variant.
type Emitter[T any] struct {
	store entryStore[T]
}

// NewEmitter creates an empty managed emitter.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{}
}

// Subscribe registers fn and returns the Subscription that detaches it.
// A nil handler is a usage fault and panics.
func (m *Emitter[T]) Subscribe(fn Handler[T]) Subscription {
	if fn == nil {
		panic("hibiki: nil handler")
	}

	return Subscription{owner: m, id: m.store.add(fn)}
}

// Emit compacts the entry store if any entry was cancelled since the last
// call, then invokes every remaining handler with v in subscription order.
// The participant set is fixed by that compaction: an entry cancelled
// during the pass is still invoked in this pass and excluded from the
// next, and a handler subscribed during the pass joins the next pass.
func (m *Emitter[T]) Emit(v T) {
	m.store.compact()

	for _, e := range m.store.entries {
		e.fn(v)
	}
}

// Len reports the number of active subscriptions.
func (m *Emitter[T]) Len() int {
	return m.store.countActive()
}

// unsubscribe tombstones the entry; Emit removes it on its next pass.
func (m *Emitter[T]) unsubscribe(id int64) {
	m.store.deactivate(id)
}
