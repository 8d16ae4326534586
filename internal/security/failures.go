package security

import (
	"sync"
	"time"

	"github.com/yndnr/rsvpguard/pkg/cmap"
)

// FailureTracker counts invalid-token attempts per identifier without
// writing full events. Only the newest maxKept timestamps are retained per
// identifier.
type FailureTracker struct {
	entries *cmap.Map[string, *failureEntry]
	maxKept int
	now     func() time.Time
}

type failureEntry struct {
	mu    sync.Mutex
	times []time.Time
}

// NewFailureTracker keeps at most maxKept timestamps per identifier.
func NewFailureTracker(maxKept int, now func() time.Time) *FailureTracker {
	if maxKept <= 0 {
		maxKept = 64
	}
	if now == nil {
		now = time.Now
	}
	return &FailureTracker{
		entries: cmap.New[string, *failureEntry](),
		maxKept: maxKept,
		now:     now,
	}
}

// Add records one failure for identifier at the current time.
func (t *FailureTracker) Add(identifier string) {
	e, _ := t.entries.GetOrCreate(identifier, func() *failureEntry { return &failureEntry{} })
	now := t.now()
	e.mu.Lock()
	e.times = append(e.times, now)
	if len(e.times) > t.maxKept {
		e.times = e.times[len(e.times)-t.maxKept:]
	}
	e.mu.Unlock()
}

// Count returns identifier's failures within the last window.
func (t *FailureTracker) Count(identifier string, window time.Duration) int {
	e, ok := t.entries.Get(identifier)
	if !ok {
		return 0
	}
	since := t.now().Add(-window)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := len(e.times) - 1; i >= 0 && !e.times[i].Before(since); i-- {
		n++
	}
	return n
}

// Reset forgets identifier's failures.
func (t *FailureTracker) Reset(identifier string) {
	t.entries.Delete(identifier)
}

// Cleanup drops identifiers with no failure inside window.
func (t *FailureTracker) Cleanup(window time.Duration) int {
	since := t.now().Add(-window)
	return t.entries.DeleteIf(func(_ string, e *failureEntry) bool {
		if !e.mu.TryLock() {
			return false
		}
		defer e.mu.Unlock()
		return len(e.times) == 0 || e.times[len(e.times)-1].Before(since)
	})
}
