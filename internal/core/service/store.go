package service

import (
	"context"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// PutMode controls how BulkPut treats tokens that already exist.
type PutMode int

const (
	// PutInsert rejects the whole batch with ErrGuestConflict if any token exists.
	PutInsert PutMode = iota
	// PutSkipExisting writes only tokens that do not exist yet.
	PutSkipExisting
	// PutOverwrite replaces existing records.
	PutOverwrite
)

// TokenStore is the source of truth for guest records, keyed by token.
//
// Implementations must be safe for concurrent use and must apply a BulkPut
// batch entirely or not at all.
type TokenStore interface {
	// Get returns a copy of the record or ErrGuestNotFound.
	Get(ctx context.Context, token string) (*domain.GuestRecord, error)

	// MarkUsed flips the used flag. It returns false when the record was
	// already used, and ErrGuestNotFound when it does not exist.
	MarkUsed(ctx context.Context, token string, at time.Time) (bool, error)

	// BulkPut stores records and returns how many were written.
	BulkPut(ctx context.Context, records []*domain.GuestRecord, mode PutMode) (int, error)

	// Exists reports whether token is stored.
	Exists(ctx context.Context, token string) (bool, error)

	// List returns records matching filter ordered by token.
	List(ctx context.Context, filter GuestFilter) ([]*domain.GuestRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// GuestFilter narrows List. Zero fields match everything.
type GuestFilter struct {
	GuestID string
	Used    *bool
	Tag     string
	Limit   int
}

// Match reports whether g passes the filter.
func (f GuestFilter) Match(g *domain.GuestRecord) bool {
	if f.GuestID != "" && g.GuestID != f.GuestID {
		return false
	}
	if f.Used != nil && g.Used != *f.Used {
		return false
	}
	if f.Tag != "" {
		for _, t := range g.Tags {
			if t == f.Tag {
				return true
			}
		}
		return false
	}
	return true
}

// CampaignStore holds the single campaign guest records depend on.
type CampaignStore interface {
	// GetCampaign returns a copy of the campaign or ErrCampaignNotFound.
	GetCampaign(ctx context.Context) (*domain.Campaign, error)
	PutCampaign(ctx context.Context, c *domain.Campaign) error
}
