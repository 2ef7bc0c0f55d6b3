package hibiki

import (
	"sync"
	"sync/atomic"
)

// Broadcaster is a two-phase emitter. While building, a single goroutine
// subscribes handlers; once sealed, any number of goroutines may Emit
// concurrently without locking. Sealing happens explicitly via Seal or
// implicitly on the first Emit, and the one-time transition publishes the
// fully built handler list to every emitting goroutine. There is no
// unsubscribe in this variant.
type Broadcaster[T any] struct {
	handlers []Handler[T]
	seal     sync.Once
	sealed   atomic.Bool
}

// NewBroadcaster creates a Broadcaster in its building phase.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe appends fn to the dispatch list. It must only be called from
// the building goroutine; subscribing after the seal point is a usage
// fault and panics. A nil handler panics as well.
func (b *Broadcaster[T]) Subscribe(fn Handler[T]) {
	if fn == nil {
		panic("hibiki: nil handler")
	}
	if b.sealed.Load() {
		panic("hibiki: subscribe on sealed broadcaster")
	}

	b.handlers = append(b.handlers, fn)
}

// Seal ends the building phase. Call it from the building goroutine before
// handing the Broadcaster to emitters; it is idempotent and the first Emit
// calls it implicitly.
func (b *Broadcaster[T]) Seal() {
	b.seal.Do(func() {
		b.sealed.Store(true)
	})
}

// Emit seals the broadcaster if it is still building, then invokes every
// handler in subscription order with v.
func (b *Broadcaster[T]) Emit(v T) {
	b.Seal()

	for _, fn := range b.handlers {
		fn(v)
	}
}

// Len reports the number of subscribed handlers.
func (b *Broadcaster[T]) Len() int {
	return len(b.handlers)
}
