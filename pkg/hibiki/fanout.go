package hibiki

// Fanout is the minimal emitter: handlers are appended once and invoked on
// every Emit, in subscription order. There is no unsubscribe and no
// locking; callers confine a Fanout to one goroutine.
type Fanout[T any] struct {
	handlers []Handler[T]
}

// NewFanout creates an empty fan-out emitter.
func NewFanout[T any]() *Fanout[T] {
	return &Fanout[T]{}
}

// Subscribe appends fn to the dispatch list. There is no way to remove it.
// A nil handler is a usage fault and panics.
func (f *Fanout[T]) Subscribe(fn Handler[T]) {
	if fn == nil {
		panic("hibiki: nil handler")
	}

	f.handlers = append(f.handlers, fn)
}

// Emit invokes every handler registered before the call, in subscription
// order, each receiving v. The handler list is captured when Emit starts,
// so a handler that subscribes during dispatch joins the next pass, not
// the current one.
func (f *Fanout[T]) Emit(v T) {
	handlers := f.handlers
	for _, fn := range handlers {
		fn(v)
	}
}

// Len reports the number of subscribed handlers.
func (f *Fanout[T]) Len() int {
	return len(f.handlers)
}
