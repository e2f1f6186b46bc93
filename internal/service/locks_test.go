package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStationLocks_Serializes(t *testing.T) {
	l := newStationLocks(0)
	ctx := context.Background()

	release, n, err := l.Acquire(ctx, "stuttgart")
	if err != nil || n != 1 {
		t.Fatalf("Acquire() = %d, %v; want 1, nil", n, err)
	}

	acquired := make(chan int)
	go func() {
		r, n, err := l.Acquire(ctx, "stuttgart")
		if err != nil {
			t.Errorf("second Acquire() error = %v", err)
			close(acquired)
			return
		}
		acquired <- n
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire() returned while lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	if n := <-acquired; n != 2 {
		t.Errorf("second Acquire() concurrent = %d, want 2", n)
	}
}

func TestStationLocks_IndependentKeys(t *testing.T) {
	l := newStationLocks(0)
	ctx := context.Background()

	r1, _, err := l.Acquire(ctx, "stuttgart")
	if err != nil {
		t.Fatalf("Acquire(stuttgart) error = %v", err)
	}
	defer r1()
	r2, n, err := l.Acquire(ctx, "berlin")
	if err != nil || n != 1 {
		t.Fatalf("Acquire(berlin) = %d, %v; want 1, nil", n, err)
	}
	r2()
}

func TestStationLocks_Timeout(t *testing.T) {
	l := newStationLocks(10 * time.Millisecond)
	ctx := context.Background()

	release, _, err := l.Acquire(ctx, "stuttgart")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	_, _, err = l.Acquire(ctx, "stuttgart")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() while held error = %v, want DeadlineExceeded", err)
	}

	release()
	release()
	if n := l.size(); n != 0 {
		t.Errorf("size() = %d, want 0 after release", n)
	}
}

func TestStationLocks_ContextCanceled(t *testing.T) {
	l := newStationLocks(0)
	release, _, _ := l.Acquire(context.Background(), "stuttgart")
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := l.Acquire(ctx, "stuttgart"); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want Canceled", err)
	}
}

func TestStationLocks_ManyWaiters(t *testing.T) {
	l := newStationLocks(time.Second)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, _, err := l.Acquire(context.Background(), "stuttgart")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if n := l.size(); n != 0 {
		t.Errorf("size() = %d, want 0", n)
	}
}
