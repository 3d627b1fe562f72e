package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistryBeginTurnEnd(t *testing.T) {
	r := NewRegistry(time.Minute)

	c, created := r.Begin("CA1", "+15550001", "+15550002")
	if !created || c.SID != "CA1" {
		t.Fatalf("Begin() = %+v, %v", c, created)
	}
	if _, created := r.Begin("CA1", "", ""); created {
		t.Fatalf("second Begin() created = true, want false")
	}

	for want := 1; want <= 3; want++ {
		n, err := r.Turn("CA1")
		if err != nil {
			t.Fatalf("Turn() error = %v", err)
		}
		if n != want {
			t.Fatalf("Turn() = %d, want %d", n, want)
		}
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", r.ActiveCount())
	}

	var hooked []Call
	r.SetEndHook(func(c Call) { hooked = append(hooked, c) })

	ended, err := r.End("CA1", "")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.EndReason != EndCompleted || ended.Turns != 3 || ended.From != "+15550001" {
		t.Fatalf("ended = %+v", ended)
	}
	if len(hooked) != 1 {
		t.Fatalf("end hook calls = %d, want 1", len(hooked))
	}
	if _, err := r.Get("CA1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
}

func TestRegistryUnknownCall(t *testing.T) {
	r := NewRegistry(time.Minute)
	if _, err := r.Turn("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Turn() error = %v, want ErrNotFound", err)
	}
	if _, err := r.End("missing", EndCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End() error = %v, want ErrNotFound", err)
	}
}

func TestRegistryExpireInactive(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Begin("idle", "", "")
	r.Begin("busy", "", "")
	now = now.Add(50 * time.Second)
	if _, err := r.Turn("busy"); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	now = now.Add(20 * time.Second)

	var reasons []string
	r.SetEndHook(func(c Call) { reasons = append(reasons, c.SID+":"+c.EndReason) })
	if n := r.expireInactive(); n != 1 {
		t.Fatalf("expireInactive() = %d, want 1", n)
	}
	if len(reasons) != 1 || reasons[0] != "idle:"+EndExpired {
		t.Fatalf("hook reasons = %v", reasons)
	}
	if _, err := r.Get("busy"); err != nil {
		t.Fatalf("busy call expired early: %v", err)
	}
}

func TestRegistryJanitorExpiresInactive(t *testing.T) {
	r := NewRegistry(30 * time.Millisecond)
	r.Begin("CA9", "", "")

	var mu sync.Mutex
	done := make(chan struct{})
	r.SetEndHook(func(c Call) {
		mu.Lock()
		defer mu.Unlock()
		if c.SID == "CA9" {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("janitor did not expire inactive call")
	}
}
