package memory

import (
	"sort"
	"sync"

	"github.com/yndnr/rsvpguard/pkg/cmap"
)

// TokenSet is a concurrent-safe set of tokens.
type TokenSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewTokenSet creates an empty set.
func NewTokenSet() *TokenSet {
	return &TokenSet{items: make(map[string]struct{})}
}

// Add adds token to the set.
func (s *TokenSet) Add(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[token] = struct{}{}
}

// Remove removes token from the set.
func (s *TokenSet) Remove(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, token)
}

// Len returns the number of tokens.
func (s *TokenSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns the tokens in sorted order.
func (s *TokenSet) Items() []string {
	s.mu.RLock()
	items := make([]string, 0, len(s.items))
	for t := range s.items {
		items = append(items, t)
	}
	s.mu.RUnlock()
	sort.Strings(items)
	return items
}

// GuestIndex maps a guest id to its primary and backup tokens.
type GuestIndex struct {
	index *cmap.Map[string, *TokenSet]
}

// NewGuestIndex creates an empty index.
func NewGuestIndex() *GuestIndex {
	return &GuestIndex{index: cmap.New[string, *TokenSet]()}
}

// Add records token under guestID.
func (i *GuestIndex) Add(guestID, token string) {
	set, _ := i.index.GetOrCreate(guestID, NewTokenSet)
	set.Add(token)
}

// Remove drops token from guestID and forgets empty guests.
func (i *GuestIndex) Remove(guestID, token string) {
	i.index.Compute(guestID, func(set *TokenSet, exists bool) (*TokenSet, bool) {
		if !exists {
			return nil, false
		}
		set.Remove(token)
		return set, set.Len() > 0
	})
}

// Get returns guestID's tokens.
func (i *GuestIndex) Get(guestID string) []string {
	set, ok := i.index.Get(guestID)
	if !ok {
		return nil
	}
	return set.Items()
}
