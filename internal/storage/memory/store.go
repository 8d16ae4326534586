package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/pkg/cmap"
)

// GuestStore provides in-memory guest and campaign storage.
type GuestStore struct {
	// Primary index: token -> record
	guests *cmap.Map[string, *domain.GuestRecord]

	// Secondary index: guest id -> tokens
	byGuest *GuestIndex

	campaignMu sync.RWMutex
	campaign   *domain.Campaign

	// Held exclusively by batch writes, shared by single-record writes.
	mu sync.RWMutex
}

var (
	_ service.TokenStore    = (*GuestStore)(nil)
	_ service.CampaignStore = (*GuestStore)(nil)
)

// New creates an empty store.
func New() *GuestStore {
	return &GuestStore{
		guests:  cmap.New[string, *domain.GuestRecord](),
		byGuest: NewGuestIndex(),
	}
}

// Get returns a copy of the record for token.
func (s *GuestStore) Get(_ context.Context, token string) (*domain.GuestRecord, error) {
	g, ok := s.guests.Get(token)
	if !ok {
		return nil, domain.ErrGuestNotFound
	}
	return g.Clone(), nil
}

// Exists reports whether token is stored.
func (s *GuestStore) Exists(_ context.Context, token string) (bool, error) {
	_, ok := s.guests.Get(token)
	return ok, nil
}

// MarkUsed flips the used flag under the shard lock.
func (s *GuestStore) MarkUsed(_ context.Context, token string, at time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, flipped := false, false
	s.guests.Compute(token, func(g *domain.GuestRecord, exists bool) (*domain.GuestRecord, bool) {
		if !exists {
			return nil, false
		}
		found = true
		if g.Used {
			return g, true
		}
		// Stored records are never mutated in place; readers may hold them.
		c := g.Clone()
		flipped = c.MarkUsed(at)
		return c, true
	})
	if !found {
		return false, domain.ErrGuestNotFound
	}
	return flipped, nil
}

// BulkPut validates every record first, then applies the batch under the
// store-wide lock.
func (s *GuestStore) BulkPut(_ context.Context, records []*domain.GuestRecord, mode service.PutMode) (int, error) {
	seen := make(map[string]struct{}, len(records))
	for _, g := range records {
		if err := g.Validate(); err != nil {
			return 0, err
		}
		if _, dup := seen[g.Token]; dup {
			return 0, domain.ErrGuestConflict.WithDetails("duplicate token in batch")
		}
		seen[g.Token] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == service.PutInsert {
		for _, g := range records {
			if _, exists := s.guests.Get(g.Token); exists {
				return 0, domain.ErrGuestConflict.WithDetails("token already issued to " + g.GuestID)
			}
		}
	}

	written := 0
	for _, g := range records {
		old, exists := s.guests.Get(g.Token)
		if exists {
			if mode == service.PutSkipExisting {
				continue
			}
			s.byGuest.Remove(old.GuestID, old.Token)
		}
		s.guests.Set(g.Token, g.Clone())
		s.byGuest.Add(g.GuestID, g.Token)
		written++
	}
	return written, nil
}

// List returns matching records ordered by token.
func (s *GuestStore) List(_ context.Context, filter service.GuestFilter) ([]*domain.GuestRecord, error) {
	var out []*domain.GuestRecord
	if filter.GuestID != "" {
		for _, tok := range s.byGuest.Get(filter.GuestID) {
			if g, ok := s.guests.Get(tok); ok && filter.Match(g) {
				out = append(out, g.Clone())
			}
		}
	} else {
		s.guests.Range(func(_ string, g *domain.GuestRecord) bool {
			if filter.Match(g) {
				out = append(out, g.Clone())
			}
			return true
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Count returns the number of records.
func (s *GuestStore) Count(_ context.Context) (int, error) {
	return s.guests.Count(), nil
}

// GetCampaign returns a copy of the campaign.
func (s *GuestStore) GetCampaign(_ context.Context) (*domain.Campaign, error) {
	s.campaignMu.RLock()
	defer s.campaignMu.RUnlock()
	if s.campaign == nil {
		return nil, domain.ErrCampaignNotFound
	}
	return s.campaign.Clone(), nil
}

// PutCampaign replaces the campaign.
func (s *GuestStore) PutCampaign(_ context.Context, c *domain.Campaign) error {
	if c == nil || c.ID == "" {
		return domain.ErrMissingArgument.WithDetails("campaign id is required")
	}
	s.campaignMu.Lock()
	s.campaign = c.Clone()
	s.campaignMu.Unlock()
	return nil
}
