package service

import (
	"context"
	"sync"
	"time"
)

// stationLock serializes work on one station. sem has capacity one; refs
// counts holders plus waiters so the entry can be dropped when idle.
type stationLock struct {
	sem  chan struct{}
	refs int
}

// stationLocks hands out one lock per station key. The refill path holds a
// station's lock across read, refill and re-read so concurrent callers never
// interleave a delete with another caller's inserts.
type stationLocks struct {
	mu      sync.Mutex
	locks   map[string]*stationLock
	timeout time.Duration
}

// newStationLocks returns lock storage where a waiter gives up after timeout (0 = caller context only).
func newStationLocks(timeout time.Duration) *stationLocks {
	return &stationLocks{
		locks:   make(map[string]*stationLock),
		timeout: timeout,
	}
}

// Acquire blocks until key's lock is held, the wait times out, or ctx is done.
// concurrent is the number of callers holding or waiting on key at entry,
// this one included. release is safe to call more than once.
func (l *stationLocks) Acquire(ctx context.Context, key string) (release func(), concurrent int, err error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &stationLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	concurrent = lk.refs
	l.mu.Unlock()

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case lk.sem <- struct{}{}:
	case <-waitCtx.Done():
		l.unref(key, lk)
		return nil, concurrent, waitCtx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.sem
			l.unref(key, lk)
		})
	}, concurrent, nil
}

// size returns the number of stations with holders or waiters.
func (l *stationLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *stationLocks) unref(key string, lk *stationLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
