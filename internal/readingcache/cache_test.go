package readingcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/goleak"

	"ex-hibiki/internal/statusfeed"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func reading(id, device string) statusfeed.Reading {
	return statusfeed.Reading{ID: id, Device: device, Status: "online", At: time.Now().UTC()}
}

func TestCacheRecentReturnsNewestFirst(t *testing.T) {
	t.Parallel()

	cache := New()
	cache.Record(reading("r1", "dev-a"))
	cache.Record(reading("r2", "dev-b"))
	cache.Record(reading("r3", "dev-c"))

	recent := cache.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("recent length = %d, want 3", len(recent))
	}
	if recent[0].ID != "r3" || recent[1].ID != "r2" || recent[2].ID != "r1" {
		t.Fatalf("recent order = %q %q %q, want r3 r2 r1", recent[0].ID, recent[1].ID, recent[2].ID)
	}

	limited := cache.Recent(2)
	if len(limited) != 2 || limited[0].ID != "r3" || limited[1].ID != "r2" {
		t.Fatalf("limited recent = %v, want [r3 r2]", limited)
	}
}

func TestCacheEvictsOldestBeyondCapacity(t *testing.T) {
	t.Parallel()

	cache := New(WithMaxEntries(2))
	cache.Record(reading("r1", "dev-a"))
	cache.Record(reading("r2", "dev-b"))
	cache.Record(reading("r3", "dev-c"))

	if cache.Len() != 2 {
		t.Fatalf("len = %d, want 2", cache.Len())
	}

	recent := cache.Recent(0)
	if len(recent) != 2 || recent[0].ID != "r3" || recent[1].ID != "r2" {
		t.Fatalf("recent = %v, want [r3 r2]", recent)
	}
	if _, ok := cache.Latest("dev-a"); ok {
		t.Fatal("evicted device must not resolve")
	}
}

func TestCacheExpiresReadingsAfterTTL(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	cache := New(WithTTL(time.Hour), WithClock(mock))

	cache.Record(reading("r1", "dev-a"))
	mock.Add(30 * time.Minute)
	cache.Record(reading("r2", "dev-b"))
	mock.Add(31 * time.Minute)

	recent := cache.Recent(0)
	if len(recent) != 1 || recent[0].ID != "r2" {
		t.Fatalf("recent = %v, want only r2", recent)
	}
	if cache.Len() != 1 {
		t.Fatalf("len after sweep = %d, want 1", cache.Len())
	}

	if _, ok := cache.Latest("dev-a"); ok {
		t.Fatal("expired reading must not resolve")
	}
	if got, ok := cache.Latest("dev-b"); !ok || got.ID != "r2" {
		t.Fatalf("latest dev-b = %v %t, want r2 true", got, ok)
	}
}

func TestCacheLatestTracksPerDevice(t *testing.T) {
	t.Parallel()

	cache := New()
	cache.Record(reading("a1", "dev-a"))
	cache.Record(reading("b1", "dev-b"))
	cache.Record(reading("a2", "dev-a"))

	if got, ok := cache.Latest("dev-a"); !ok || got.ID != "a2" {
		t.Fatalf("latest dev-a = %v %t, want a2 true", got, ok)
	}
	if got, ok := cache.Latest("dev-b"); !ok || got.ID != "b1" {
		t.Fatalf("latest dev-b = %v %t, want b1 true", got, ok)
	}
	if _, ok := cache.Latest("dev-x"); ok {
		t.Fatal("unknown device must not resolve")
	}
}

func TestCacheRecordIsConcurrencySafe(t *testing.T) {
	t.Parallel()

	cache := New()

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		worker := worker
		wg.Add(1)
		go func() {
			defer wg.Done()
			for iteration := 0; iteration < 50; iteration++ {
				device := fmt.Sprintf("dev-%d", worker)
				cache.Record(reading(fmt.Sprintf("r-%d-%d", worker, iteration), device))
			}
		}()
	}
	wg.Wait()

	if cache.Len() != 400 {
		t.Fatalf("len = %d, want 400", cache.Len())
	}
	for worker := 0; worker < 8; worker++ {
		device := fmt.Sprintf("dev-%d", worker)
		got, ok := cache.Latest(device)
		if !ok {
			t.Fatalf("latest %s missing", device)
		}
		if got.ID != fmt.Sprintf("r-%d-49", worker) {
			t.Fatalf("latest %s = %q, want the worker's final record", device, got.ID)
		}
	}
}
