package hibiki

// unsubscriber detaches one entry by id. Both managed emitter variants
// implement it; the handle does not care which one issued it.
type unsubscriber interface {
	unsubscribe(id int64)
}

// Subscription is a revocable handle for one registered handler. The zero
// value is an inert token whose Cancel does nothing, and cancellation is
// idempotent: only the first Cancel detaches the handler, so passing a
// Subscription around can never double-unsubscribe. A Subscription keeps
// its emitter reachable, which makes Cancel safe even when every other
// reference to the emitter is gone.
type Subscription struct {
	owner unsubscriber
	id    int64
}

// ID returns the emitter-unique id of this subscription, or zero for the
// inert token. Ids are strictly increasing per emitter and never reused.
func (s Subscription) ID() int64 {
	return s.id
}

// Cancel detaches the handler this Subscription was issued for. Calling it
// again, calling it on the zero value, or calling it long after the
// emitter was dropped are all safe no-ops. For SharedEmitter subscriptions
// Cancel is safe from any goroutine; for Emitter subscriptions the caller
// serializes it with other emitter operations.
func (s Subscription) Cancel() {
	if s.owner == nil {
		return
	}

	s.owner.unsubscribe(s.id)
}
