package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
)

// maxConflictRetries bounds MarkUsed and BulkPut retries on transaction
// conflicts.
const maxConflictRetries = 8

var (
	_ service.TokenStore    = (*BadgerStore)(nil)
	_ service.CampaignStore = (*BadgerStore)(nil)
)

func guestKey(token string) []byte {
	return []byte(guestPrefix + token)
}

func (s *BadgerStore) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Get returns the record for token.
func (s *BadgerStore) Get(_ context.Context, token string) (*domain.GuestRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var g domain.GuestRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, guestKey(token), &g)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrGuestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get guest: %w", err)
	}
	return &g, nil
}

// Exists reports whether token is stored.
func (s *BadgerStore) Exists(_ context.Context, token string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(guestKey(token))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("storage: exists: %w", err)
	}
}

// MarkUsed flips the used flag. Concurrent callers conflict at commit and
// the loser retries, observing the flag already set.
func (s *BadgerStore) MarkUsed(ctx context.Context, token string, at time.Time) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		flipped := false
		err := s.db.Update(func(txn *badger.Txn) error {
			var g domain.GuestRecord
			if err := getJSON(txn, guestKey(token), &g); err != nil {
				return err
			}
			if !g.MarkUsed(at) {
				return nil
			}
			flipped = true
			return setJSON(txn, guestKey(token), &g)
		})
		switch {
		case err == nil:
			return flipped, nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return false, domain.ErrGuestNotFound
		case errors.Is(err, badger.ErrConflict):
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			continue
		default:
			return false, fmt.Errorf("storage: mark used: %w", err)
		}
	}
	return false, fmt.Errorf("storage: mark used: %w", badger.ErrConflict)
}

// BulkPut writes the batch in a single transaction. Batches larger than one
// Badger transaction fail with a wrapped badger.ErrTxnTooBig and nothing is
// written. A conflicting concurrent write reruns the whole batch, so the
// existence checks always see the committed state.
func (s *BadgerStore) BulkPut(ctx context.Context, records []*domain.GuestRecord, mode service.PutMode) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
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

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		written, err := s.bulkPut(records, mode)
		var de *domain.DomainError
		switch {
		case err == nil:
			return written, nil
		case errors.As(err, &de):
			return 0, err
		case errors.Is(err, badger.ErrConflict):
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			s.logger.Debug("bulk put conflict, retrying", "attempt", attempt+1, "records", len(records))
			continue
		default:
			return 0, fmt.Errorf("storage: bulk put: %w", err)
		}
	}
	return 0, fmt.Errorf("storage: bulk put: %w", badger.ErrConflict)
}

func (s *BadgerStore) bulkPut(records []*domain.GuestRecord, mode service.PutMode) (int, error) {
	written := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, g := range records {
			_, err := txn.Get(guestKey(g.Token))
			exists := err == nil
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if exists {
				switch mode {
				case service.PutInsert:
					return domain.ErrGuestConflict.WithDetails("token already issued to " + g.GuestID)
				case service.PutSkipExisting:
					continue
				}
			}
			if err := setJSON(txn, guestKey(g.Token), g); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	return written, err
}

// List scans guest records in token order.
func (s *BadgerStore) List(_ context.Context, filter service.GuestFilter) ([]*domain.GuestRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []*domain.GuestRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(guestPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var g domain.GuestRecord
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &g) }); err != nil {
				return err
			}
			if !filter.Match(&g) {
				continue
			}
			out = append(out, &g)
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list guests: %w", err)
	}
	return out, nil
}

// Count counts guest keys without reading values.
func (s *BadgerStore) Count(_ context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(guestPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: count guests: %w", err)
	}
	return n, nil
}

// GetCampaign returns the stored campaign.
func (s *BadgerStore) GetCampaign(_ context.Context) (*domain.Campaign, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var c domain.Campaign
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(campaignKey), &c)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get campaign: %w", err)
	}
	return &c, nil
}

// PutCampaign replaces the campaign.
func (s *BadgerStore) PutCampaign(_ context.Context, c *domain.Campaign) error {
	if c == nil || c.ID == "" {
		return domain.ErrMissingArgument.WithDetails("campaign id is required")
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, []byte(campaignKey), c)
	})
	if err != nil {
		return fmt.Errorf("storage: put campaign: %w", err)
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(b []byte) error { return json.Unmarshal(b, v) })
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}
