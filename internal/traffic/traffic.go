// Package traffic keeps sliding windows of request outcomes for the health
// endpoint and the rate limit gauges.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one served request.
type Outcome int

const (
	// Success is a request that returned data (hit or refilled).
	Success Outcome = iota
	// Failure is a request that ended in an upstream or persistence error.
	Failure
	// Denied is a request rejected by the rate limiter.
	Denied
)

// maxAge bounds how long outcomes are retained regardless of the queried window.
const maxAge = 5 * time.Minute

var defaultTracker = NewTracker(nil)

// RecordSuccess records a successful request outcome.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a failed request outcome.
func RecordError() { defaultTracker.Record(Failure) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.Record(Denied) }

// RequestCount returns the number of outcomes of any kind within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(Denied, window)
}

// ErrorRate returns (errorCount, totalCount) within the window. Denials are excluded.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker maintains a time-ordered window of outcomes.
type Tracker struct {
	mu     sync.Mutex
	now    func() time.Time
	events []event
}

// NewTracker returns a tracker using now as its clock; nil means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Record appends an outcome stamped with the tracker clock.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Count returns the number of outcomes of kind o within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.windowLocked(window) {
		if e.outcome == o {
			n++
		}
	}
	return n
}

// RequestCount returns the number of outcomes of any kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windowLocked(window))
}

// ErrorRate returns (errorCount, totalCount) within the window.
// totalCount includes successes and failures only.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.windowLocked(window) {
		switch e.outcome {
		case Failure:
			errors++
			total++
		case Success:
			total++
		}
	}
	return errors, total
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// windowLocked returns the suffix of events newer than now-window.
// Must be called with mutex held.
func (t *Tracker) windowLocked(window time.Duration) []event {
	cutoff := t.now().Add(-window)
	i := len(t.events)
	for i > 0 && t.events[i-1].at.After(cutoff) {
		i--
	}
	return t.events[i:]
}

// pruneLocked drops events maxAge old or older. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	i := 0
	for i < len(t.events) && !t.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
