package hibiki

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// TestSharedEmitterDispatchAndCancelScenario verifies the canonical
// subscribe/emit/cancel/emit sequence on the goroutine-safe variant.
func TestSharedEmitterDispatchAndCancelScenario(t *testing.T) {
	t.Parallel()

	emitter := NewSharedEmitter[int]()
	calls := make([]string, 0, 3)
	first := emitter.Subscribe(func(v int) {
		calls = append(calls, fmt.Sprintf("cb1:%d", v))
	})
	emitter.Subscribe(func(v int) {
		calls = append(calls, fmt.Sprintf("cb2:%d", v))
	})

	emitter.Emit(5)
	first.Cancel()
	emitter.Emit(7)

	want := []string{"cb1:5", "cb2:5", "cb2:7"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for idx := range want {
		if calls[idx] != want[idx] {
			t.Fatalf("calls[%d] = %s, want %s", idx, calls[idx], want[idx])
		}
	}
}

// TestSharedEmitterCancelBeforeTurnSkipsEntry verifies the per-entry
// liveness re-check at invocation time.
func TestSharedEmitterCancelBeforeTurnSkipsEntry(t *testing.T) {
	t.Parallel()

	emitter := NewSharedEmitter[int]()
	var second Subscription
	secondCalls := 0
	emitter.Subscribe(func(int) {
		second.Cancel()
	})
	second = emitter.Subscribe(func(int) {
		secondCalls++
	})

	emitter.Emit(1)

	if secondCalls != 0 {
		t.Fatalf("entry cancelled before its turn ran %d times, want 0", secondCalls)
	}
}

// TestSharedEmitterReentrantHandlersDoNotDeadlock verifies that handlers
// may subscribe, emit, and cancel on their own emitter.
func TestSharedEmitterReentrantHandlersDoNotDeadlock(t *testing.T) {
	t.Parallel()

	emitter := NewSharedEmitter[int]()
	var depth atomic.Int64
	nestedCalls := 0
	emitter.Subscribe(func(v int) {
		if depth.Add(1) > 1 {
			depth.Add(-1)
			return
		}
		defer depth.Add(-1)

		inner := emitter.Subscribe(func(int) {
			nestedCalls++
		})
		emitter.Emit(v + 1)
		inner.Cancel()
	})

	emitter.Emit(1)

	if nestedCalls != 1 {
		t.Fatalf("nested handler ran %d times, want 1 from the recursive pass", nestedCalls)
	}
}

// TestSharedEmitterConcurrentStress verifies id uniqueness and cancellation
// under competing subscribe/emit/cancel goroutines.
func TestSharedEmitterConcurrentStress(t *testing.T) {
	t.Parallel()

	const goroutines = 8
	const iterations = 50

	emitter := NewSharedEmitter[int]()
	var invocations atomic.Int64
	var idsMu sync.Mutex
	ids := make(map[int64]struct{}, goroutines*iterations)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for iteration := 0; iteration < iterations; iteration++ {
				handle := emitter.Subscribe(func(int) {
					invocations.Add(1)
				})

				idsMu.Lock()
				ids[handle.ID()] = struct{}{}
				idsMu.Unlock()

				emitter.Emit(iteration)
				handle.Cancel()
			}
		}()
	}
	wg.Wait()

	if len(ids) != goroutines*iterations {
		t.Fatalf("unique ids = %d, want %d", len(ids), goroutines*iterations)
	}

	before := invocations.Load()
	emitter.Emit(999)
	if after := invocations.Load(); after != before {
		t.Fatalf("cancelled handlers ran %d more times", after-before)
	}
	if emitter.Len() != 0 {
		t.Fatalf("len = %d, want 0", emitter.Len())
	}
}

// TestSharedEmitterConcurrentCancelUnsubscribesOnce verifies handle
// idempotence across goroutines.
func TestSharedEmitterConcurrentCancelUnsubscribesOnce(t *testing.T) {
	t.Parallel()

	emitter := NewSharedEmitter[int]()
	var invocations atomic.Int64
	handle := emitter.Subscribe(func(int) {
		invocations.Add(1)
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle.Cancel()
		}()
	}
	wg.Wait()

	emitter.Emit(1)

	if got := invocations.Load(); got != 0 {
		t.Fatalf("cancelled handler ran %d times, want 0", got)
	}
	if emitter.Len() != 0 {
		t.Fatalf("len = %d, want 0", emitter.Len())
	}
}

// TestSharedEmitterLenCountsActiveEntries verifies tombstones are excluded
// before any compaction pass runs.
func TestSharedEmitterLenCountsActiveEntries(t *testing.T) {
	t.Parallel()

	emitter := NewSharedEmitter[int]()
	emitter.Subscribe(func(int) {})
	cancelled := emitter.Subscribe(func(int) {})
	emitter.Subscribe(func(int) {})

	cancelled.Cancel()

	if emitter.Len() != 2 {
		t.Fatalf("len = %d, want 2", emitter.Len())
	}
}

// TestSharedEmitterNilHandlerPanics verifies the usage-fault guard.
func TestSharedEmitterNilHandlerPanics(t *testing.T) {
	t.Parallel()

	emitter := NewSharedEmitter[int]()
	mustPanic(t, "hibiki: nil handler", func() {
		emitter.Subscribe(nil)
	})
}
