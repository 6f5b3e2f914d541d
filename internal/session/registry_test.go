package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(ttl time.Duration) (*Registry[*int], *mockClock) {
	clock := &mockClock{now: time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)}
	return NewRegistryWithClock[*int]("test", ttl, clock), clock
}

func TestPutAndGet(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	v := 7
	id := r.Put(&v)

	got, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != 7 {
		t.Errorf("value = %d, want 7", *got)
	}
}

func TestGet_Unknown(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknown) {
		t.Errorf("error = %v, want ErrUnknown", err)
	}
}

func TestExpiry(t *testing.T) {
	r, clock := newTestRegistry(time.Minute)
	v := 1
	id := r.Put(&v)

	clock.Advance(59 * time.Second)
	if _, err := r.Get(id); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	// Use refreshed the deadline.
	clock.Advance(59 * time.Second)
	if _, err := r.Get(id); err != nil {
		t.Fatalf("Get after refresh: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := r.Get(id); !errors.Is(err, ErrUnknown) {
		t.Errorf("error = %v, want ErrUnknown after ttl", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestSweep(t *testing.T) {
	r, clock := newTestRegistry(time.Minute)
	a, b := 1, 2
	r.Put(&a)
	clock.Advance(30 * time.Second)
	keep := r.Put(&b)
	clock.Advance(45 * time.Second)

	if n := r.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, err := r.Get(keep); err != nil {
		t.Errorf("newer entry swept: %v", err)
	}
}

func TestDelete(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	v := 1
	id := r.Put(&v)
	r.Delete(id)
	r.Delete("never-existed")
	if _, err := r.Get(id); !errors.Is(err, ErrUnknown) {
		t.Errorf("error = %v, want ErrUnknown", err)
	}
}

// TestDo_Serialized verifies concurrent Do calls on one id never overlap.
func TestDo_Serialized(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	v := 0
	id := r.Put(&v)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Do(id, func(p *int) error {
				*p++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := r.Get(id)
	if *got != 50 {
		t.Errorf("counter = %d, want 50", *got)
	}
}

func TestDo_PropagatesError(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	v := 0
	id := r.Put(&v)
	want := errors.New("boom")
	if err := r.Do(id, func(*int) error { return want }); !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
