package security

import (
	"context"
	"sort"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/pkg/cmap"
)

// BlockList is the set of identifiers denied before rate limiting.
//
// Implementations must be safe for concurrent use. Lookup must treat an
// expired entry as absent.
type BlockList interface {
	Block(ctx context.Context, entry domain.BlockEntry) error
	Unblock(ctx context.Context, identifier string) (bool, error)
	Lookup(ctx context.Context, identifier string, now time.Time) (domain.BlockEntry, bool, error)
	List(ctx context.Context, now time.Time) ([]domain.BlockEntry, error)

	// Merge stores entry atomically with respect to the identifier's
	// current block and reports whether it was written. See mergeEntry.
	// Used by backup restore.
	Merge(ctx context.Context, entry domain.BlockEntry, overwrite bool, now time.Time) (bool, error)
}

// mergeEntry decides whether entry replaces current. An inactive entry is
// never written. An active current block is kept unless overwrite is set,
// and a permanent block is never weakened to an expiring one.
func mergeEntry(current domain.BlockEntry, exists bool, entry domain.BlockEntry, overwrite bool, now time.Time) bool {
	if !entry.Active(now) {
		return false
	}
	if !exists || !current.Active(now) {
		return true
	}
	if !overwrite {
		return false
	}
	return !current.ExpiresAt.IsZero() || entry.ExpiresAt.IsZero()
}

// MemoryBlockList is a process-local BlockList.
type MemoryBlockList struct {
	entries *cmap.Map[string, domain.BlockEntry]
}

// NewMemoryBlockList returns an empty block list.
func NewMemoryBlockList() *MemoryBlockList {
	return &MemoryBlockList{entries: cmap.New[string, domain.BlockEntry]()}
}

func (b *MemoryBlockList) Block(_ context.Context, entry domain.BlockEntry) error {
	if entry.Identifier == "" {
		return domain.ErrMissingArgument.WithDetails("identifier is required")
	}
	b.entries.Set(entry.Identifier, entry)
	return nil
}

func (b *MemoryBlockList) Unblock(_ context.Context, identifier string) (bool, error) {
	existed := false
	b.entries.Compute(identifier, func(old domain.BlockEntry, exists bool) (domain.BlockEntry, bool) {
		existed = exists
		return old, false
	})
	return existed, nil
}

func (b *MemoryBlockList) Lookup(_ context.Context, identifier string, now time.Time) (domain.BlockEntry, bool, error) {
	e, ok := b.entries.Get(identifier)
	if !ok {
		return domain.BlockEntry{}, false, nil
	}
	if !e.Active(now) {
		b.entries.Compute(identifier, func(old domain.BlockEntry, exists bool) (domain.BlockEntry, bool) {
			// Keep an entry re-blocked since the read above.
			return old, exists && old.Active(now)
		})
		return domain.BlockEntry{}, false, nil
	}
	return e, true, nil
}

func (b *MemoryBlockList) List(_ context.Context, now time.Time) ([]domain.BlockEntry, error) {
	var out []domain.BlockEntry
	b.entries.Range(func(_ string, e domain.BlockEntry) bool {
		if e.Active(now) {
			out = append(out, e)
		}
		return true
	})
	sortEntries(out)
	return out, nil
}

func (b *MemoryBlockList) Merge(_ context.Context, entry domain.BlockEntry, overwrite bool, now time.Time) (bool, error) {
	if entry.Identifier == "" {
		return false, domain.ErrMissingArgument.WithDetails("identifier is required")
	}
	stored := false
	b.entries.Compute(entry.Identifier, func(old domain.BlockEntry, exists bool) (domain.BlockEntry, bool) {
		if mergeEntry(old, exists, entry, overwrite, now) {
			stored = true
			return entry, true
		}
		return old, exists
	})
	return stored, nil
}

// Cleanup drops expired entries and returns how many were removed.
func (b *MemoryBlockList) Cleanup(now time.Time) int {
	return b.entries.DeleteIf(func(_ string, e domain.BlockEntry) bool {
		return !e.Active(now)
	})
}

func sortEntries(entries []domain.BlockEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].BlockedAt.Equal(entries[j].BlockedAt) {
			return entries[i].BlockedAt.Before(entries[j].BlockedAt)
		}
		return entries[i].Identifier < entries[j].Identifier
	})
}
