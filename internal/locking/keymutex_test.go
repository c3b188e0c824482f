package locking

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := NewKeyMutex()
	ctx := context.Background()

	const workers = 32
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Lock(ctx, "ticket-1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestLockDistinctKeysDoNotContend(t *testing.T) {
	km := NewKeyMutex()
	ctx := context.Background()

	releaseA, err := km.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := km.Lock(ctx, "b")
		if err != nil {
			t.Errorf("Lock b: %v", err)
			return
		}
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on distinct key blocked")
	}
}

func TestLockRespectsContextDeadline(t *testing.T) {
	km := NewKeyMutex()

	release, err := km.Lock(context.Background(), "ticket-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := km.Lock(ctx, "ticket-1"); err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestLockTableDoesNotLeak(t *testing.T) {
	km := NewKeyMutex()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		release, err := km.Lock(ctx, "ticket-1")
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}
		release()
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.entries) != 0 {
		t.Errorf("lock table holds %d entries after release", len(km.entries))
	}
}
