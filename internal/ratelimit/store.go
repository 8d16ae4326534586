package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/yndnr/rsvpguard/pkg/cmap"
)

// WindowStore persists windows and applies the admission algorithm
// atomically per identifier.
type WindowStore interface {
	// Admit applies one request for identifier at now.
	Admit(ctx context.Context, identifier string, now time.Time, cfg Config) (Decision, error)

	// Peek returns the current window without counting a request.
	Peek(ctx context.Context, identifier string) (Window, bool, error)

	// Reset forgets identifier's window and any burst block.
	Reset(ctx context.Context, identifier string) error

	// Cleanup removes windows whose reset time and block have both passed.
	Cleanup(ctx context.Context, now time.Time) (int, error)

	// Count returns the number of tracked windows.
	Count(ctx context.Context) (int, error)
}

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	windows *cmap.Map[string, *lockedWindow]
}

type lockedWindow struct {
	mu sync.Mutex
	w  Window
	// dead is set when Cleanup unlinks the window from the map.
	dead bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: cmap.New[string, *lockedWindow]()}
}

func newLockedWindow() *lockedWindow { return &lockedWindow{} }

// Admit locks only identifier's window.
func (s *MemoryStore) Admit(_ context.Context, identifier string, now time.Time, cfg Config) (Decision, error) {
	for {
		lw, _ := s.windows.GetOrCreate(identifier, newLockedWindow)
		lw.mu.Lock()
		if lw.dead {
			// Lost a race with Cleanup; fetch the replacement.
			lw.mu.Unlock()
			continue
		}
		d := admit(&lw.w, now, cfg)
		lw.mu.Unlock()
		return d, nil
	}
}

// Peek returns a copy of identifier's window.
func (s *MemoryStore) Peek(_ context.Context, identifier string) (Window, bool, error) {
	lw, ok := s.windows.Get(identifier)
	if !ok {
		return Window{}, false, nil
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w, true, nil
}

// Reset drops identifier's window.
func (s *MemoryStore) Reset(_ context.Context, identifier string) error {
	s.windows.Compute(identifier, func(lw *lockedWindow, exists bool) (*lockedWindow, bool) {
		if exists {
			lw.mu.Lock()
			lw.dead = true
			lw.mu.Unlock()
		}
		return nil, false
	})
	return nil
}

// Cleanup removes expired windows. A window whose lock is held by a
// concurrent Admit is skipped until the next tick.
func (s *MemoryStore) Cleanup(_ context.Context, now time.Time) (int, error) {
	return s.windows.DeleteIf(func(_ string, lw *lockedWindow) bool {
		if !lw.mu.TryLock() {
			return false
		}
		defer lw.mu.Unlock()
		if lw.w.Expired(now) {
			lw.dead = true
			return true
		}
		return false
	}), nil
}

// Count returns the number of tracked windows.
func (s *MemoryStore) Count(context.Context) (int, error) {
	return s.windows.Count(), nil
}
