package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// WriteEvent persists ev until the configured event retention passes.
// It satisfies security.Sink.
func (s *BadgerStore) WriteEvent(_ context.Context, ev domain.SecurityEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("storage: encode event: %w", err)
	}
	entry := badger.NewEntry([]byte(eventPrefix+ev.ID), b)
	if s.cfg.EventRetention > 0 {
		entry = entry.WithTTL(s.cfg.EventRetention)
	}
	if err := s.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(entry) }); err != nil {
		return fmt.Errorf("storage: write event: %w", err)
	}
	return nil
}

// LoadEvents returns persisted events at or after since, oldest first, at
// most limit of the newest when limit > 0. Event keys are ULIDs, so key
// order is time order.
func (s *BadgerStore) LoadEvents(_ context.Context, since time.Time, limit int) ([]domain.SecurityEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []domain.SecurityEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last key with the prefix.
		for it.Seek([]byte(eventPrefix + "\xff")); it.Valid(); it.Next() {
			var ev domain.SecurityEvent
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &ev) }); err != nil {
				return err
			}
			if ev.Timestamp.Before(since) {
				break
			}
			out = append(out, ev)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: load events: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
