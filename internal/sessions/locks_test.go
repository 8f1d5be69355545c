package sessions

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestLockRegistry_IdenticalInstance verifies that concurrent first
// access to one session id yields the same lock for every caller.
func TestLockRegistry_IdenticalInstance(t *testing.T) {
	reg := NewLockRegistry()

	const workers = 64
	results := make([]*Lock, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = reg.Get("sess_contended")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d got a different lock instance", i)
		}
	}

	if reg.Get("sess_other") == results[0] {
		t.Error("distinct session ids must get distinct locks")
	}
}

// TestLock_MutualExclusion verifies that the lock serializes a critical
// section across goroutines.
func TestLock_MutualExclusion(t *testing.T) {
	reg := NewLockRegistry()
	ctx := context.Background()

	var inside int
	var maxInside int
	var mu sync.Mutex

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := reg.Get("sess_serial")
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("observed %d goroutines inside the critical section, want 1", maxInside)
	}
}

// TestLock_AcquireRespectsContext verifies a waiter unblocks with an
// error when its context is cancelled while the lock is held elsewhere.
func TestLock_AcquireRespectsContext(t *testing.T) {
	l := NewLockRegistry().Get("sess_held")
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("initial acquire: %v", err)
	}
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("expected acquire to fail while lock is held and context expires")
	}

	if l.TryAcquire() {
		t.Error("TryAcquire should fail while lock is held")
	}
}

// TestNewSessionID checks shape and uniqueness of generated ids.
func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		if !strings.HasPrefix(id, "sess_") {
			t.Fatalf("id %q missing prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
