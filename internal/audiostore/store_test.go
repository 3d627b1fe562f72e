package audiostore

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStorePutGetBeforeAndAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	id := s.Put([]byte("abc"), time.Second)
	if id == "" {
		t.Fatalf("Put() returned empty id")
	}

	clock.Advance(500 * time.Millisecond)
	got, ok := s.Get(id)
	if !ok {
		t.Fatalf("Get() at t+0.5s ok = false, want true")
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("Get() = %q, want %q", got, "abc")
	}

	clock.Advance(time.Second)
	if _, ok := s.Get(id); ok {
		t.Fatalf("Get() at t+1.5s ok = true, want false")
	}
	if _, ok := s.Get(id); ok {
		t.Fatalf("second Get() after expiry ok = true, want false")
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after lazy eviction", s.Len())
	}
}

func TestStoreExpiresExactlyAtDeadline(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	id := s.Put([]byte("x"), time.Second)

	clock.Advance(time.Second)
	if _, ok := s.Get(id); ok {
		t.Fatalf("Get() at expiresAt ok = true, want false")
	}
}

func TestStorePutCopiesBlob(t *testing.T) {
	s := New()
	blob := []byte("abc")
	id := s.Put(blob, time.Minute)
	blob[0] = 'z'

	got, _ := s.Get(id)
	if string(got) != "abc" {
		t.Fatalf("Get() = %q, want %q", got, "abc")
	}
}

func TestStorePutNonPositiveTTLUsesDefault(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithDefaultTTL(time.Minute))
	id := s.Put([]byte("x"), 0)

	e, ok := s.Lookup(id)
	if !ok {
		t.Fatalf("Lookup() ok = false")
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		t.Fatalf("ExpiresAt %v not after CreatedAt %v", e.ExpiresAt, e.CreatedAt)
	}
	if got := e.ExpiresAt.Sub(e.CreatedAt); got != time.Minute {
		t.Fatalf("ttl = %v, want %v", got, time.Minute)
	}
}

func TestStoreIDsAreUnique(t *testing.T) {
	s := New()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := s.Put([]byte{byte(i)}, time.Minute)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q at iteration %d", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestStoreSweepKeepsLiveEntries(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	short := s.Put([]byte("short"), time.Second)
	long := s.Put([]byte("long"), time.Hour)

	var mu sync.Mutex
	evicted := map[string]int{}
	s.SetEvictHook(func(reason string, n int) {
		mu.Lock()
		defer mu.Unlock()
		evicted[reason] += n
	})

	clock.Advance(2 * time.Second)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, ok := s.Lookup(short); ok {
		t.Fatalf("short entry still present after sweep")
	}
	if _, ok := s.Get(long); !ok {
		t.Fatalf("long entry removed by sweep")
	}
	if evicted[EvictSweep] != 1 {
		t.Fatalf("sweep evictions = %d, want 1", evicted[EvictSweep])
	}
}

func TestStorePutSweepsExpired(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	old := s.Put([]byte("old"), time.Second)
	clock.Advance(2 * time.Second)
	s.Put([]byte("new"), time.Minute)

	if _, ok := s.Lookup(old); ok {
		t.Fatalf("expired entry survived insertion sweep")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreExtendAll(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	a := s.Put([]byte("a"), time.Minute)
	b := s.Put([]byte("b"), time.Minute)

	if n := s.ExtendAll(24 * time.Hour); n != 2 {
		t.Fatalf("ExtendAll() = %d, want 2", n)
	}
	clock.Advance(time.Hour)
	for _, id := range []string{a, b} {
		if _, ok := s.Get(id); !ok {
			t.Fatalf("Get(%s) after extension ok = false", id)
		}
	}
	clock.Advance(24 * time.Hour)
	if _, ok := s.Get(a); ok {
		t.Fatalf("Get() after extended ttl ok = true, want false")
	}
}

func TestStoreExtendAllSkipsExpired(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	id := s.Put([]byte("a"), time.Second)
	clock.Advance(time.Second)

	if n := s.ExtendAll(time.Hour); n != 0 {
		t.Fatalf("ExtendAll() = %d, want 0", n)
	}
	if _, ok := s.Get(id); ok {
		t.Fatalf("expired entry resurrected by ExtendAll")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				id := s.Put([]byte{byte(i), byte(j)}, time.Minute)
				got, ok := s.Get(id)
				if !ok || len(got) != 2 {
					t.Errorf("Get(%s) = %v, %v", id, got, ok)
					return
				}
				if j%50 == 0 {
					s.Sweep()
					s.ExtendAll(time.Hour)
				}
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 16*200 {
		t.Fatalf("Len() = %d, want %d", s.Len(), 16*200)
	}
}

func TestStoreJanitorSweeps(t *testing.T) {
	s := New()
	id := s.Put([]byte("x"), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, ok := s.Lookup(id); ok {
		t.Fatalf("janitor did not remove expired entry")
	}
}
