package hibiki

import (
	"sync/atomic"
)

// entry is one registered callback with its identity and liveness flag.
// Entries are shared by pointer between the live store and dispatch
// snapshots, so a snapshot stays valid after the store compacts the entry
// away. The active flag is atomic because the goroutine-safe emitter reads
// it outside the store lock.
type entry[T any] struct {
	id     int64
	fn     Handler[T]
	active atomic.Bool
}

// entryStore is an ordered, append-mostly collection of entries with a
// monotonic id allocator and a deferred-compaction flag. It carries no
// locking of its own; owners serialize access.
type entryStore[T any] struct {
	entries []*entry[T]
	nextID  int64
	dirty   bool
}

// add appends an active entry for fn and returns its freshly allocated id.
// Ids start at one, increase strictly, and are never reused.
func (s *entryStore[T]) add(fn Handler[T]) int64 {
	s.nextID++

	added := &entry[T]{id: s.nextID, fn: fn}
	added.active.Store(true)
	s.entries = append(s.entries, added)

	return s.nextID
}

// deactivate tombstones the entry with the given id. Physical removal is
// deferred to the next compact call so positions stay stable mid-iteration.
// Unknown and already-inactive ids are no-ops.
func (s *entryStore[T]) deactivate(id int64) {
	for _, e := range s.entries {
		if e.id != id {
			continue
		}
		if e.active.CompareAndSwap(true, false) {
			s.dirty = true
		}
		return
	}
}

// compact drops all inactive entries into a fresh slice, preserving order,
// and clears the compaction flag. The old backing array is left intact so
// a dispatch pass already iterating it is unaffected.
func (s *entryStore[T]) compact() {
	if !s.dirty {
		return
	}

	kept := make([]*entry[T], 0, len(s.entries))
	for _, e := range s.entries {
		if e.active.Load() {
			kept = append(kept, e)
		}
	}

	s.entries = kept
	s.dirty = false
}

// snapshotActive copies pointers to every currently active entry, in id
// order, into a fresh slice safe to iterate without the owner's lock.
func (s *entryStore[T]) snapshotActive() []*entry[T] {
	snapshot := make([]*entry[T], 0, len(s.entries))
	for _, e := range s.entries {
		if e.active.Load() {
			snapshot = append(snapshot, e)
		}
	}

	return snapshot
}

// countActive reports how many entries are not tombstoned.
func (s *entryStore[T]) countActive() int {
	count := 0
	for _, e := range s.entries {
		if e.active.Load() {
			count++
		}
	}

	return count
}
