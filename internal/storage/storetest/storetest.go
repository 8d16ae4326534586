// Package storetest holds the TokenStore contract tests shared by every
// storage implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
)

// Store is what the contract tests need from an implementation.
type Store interface {
	service.TokenStore
	service.CampaignStore
}

// Guest returns a valid record for token.
func Guest(token, guestID string) *domain.GuestRecord {
	issued := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &domain.GuestRecord{
		Token:     token,
		GuestID:   guestID,
		Name:      "Guest " + guestID,
		Channel:   domain.ChannelEmail,
		Contact:   guestID + "@example.com",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(domain.DefaultTokenTTL),
		Tags:      []string{"family"},
		Priority:  domain.PriorityNormal,
	}
}

// Run executes the contract against stores produced by newStore. Each
// subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "NOPE23456789"); !errors.Is(err, domain.ErrGuestNotFound) {
			t.Fatalf("Get() error = %v, want ErrGuestNotFound", err)
		}
	})

	t.Run("BulkPutAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		n, err := s.BulkPut(ctx, []*domain.GuestRecord{Guest("AAAA2222BB", "g1"), Guest("CCCC3333DD", "g2")}, service.PutInsert)
		if err != nil || n != 2 {
			t.Fatalf("BulkPut() = %d, %v", n, err)
		}
		got, err := s.Get(ctx, "AAAA2222BB")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.GuestID != "g1" || got.Name != "Guest g1" || len(got.Tags) != 1 {
			t.Errorf("Get() = %+v", got)
		}
		got.Name = "mutated"
		again, _ := s.Get(ctx, "AAAA2222BB")
		if again.Name != "Guest g1" {
			t.Error("Get() returned a shared record")
		}
		if c, _ := s.Count(ctx); c != 2 {
			t.Errorf("Count() = %d, want 2", c)
		}
		if ok, _ := s.Exists(ctx, "CCCC3333DD"); !ok {
			t.Error("Exists() = false, want true")
		}
	})

	t.Run("BulkPutInsertIsAllOrNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.BulkPut(ctx, []*domain.GuestRecord{Guest("AAAA2222BB", "g1")}, service.PutInsert); err != nil {
			t.Fatalf("BulkPut() error = %v", err)
		}
		_, err := s.BulkPut(ctx, []*domain.GuestRecord{Guest("EEEE4444FF", "g3"), Guest("AAAA2222BB", "g4")}, service.PutInsert)
		if !errors.Is(err, domain.ErrGuestConflict) {
			t.Fatalf("BulkPut(conflict) error = %v, want ErrGuestConflict", err)
		}
		if ok, _ := s.Exists(ctx, "EEEE4444FF"); ok {
			t.Error("partial batch was written")
		}
	})

	t.Run("BulkPutRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		bad := Guest("AAAA2222BB", "g1")
		bad.Name = ""
		if _, err := s.BulkPut(context.Background(), []*domain.GuestRecord{bad}, service.PutInsert); !errors.Is(err, domain.ErrGuestValidation) {
			t.Fatalf("BulkPut() error = %v, want ErrGuestValidation", err)
		}
	})

	t.Run("BulkPutModes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, _ = s.BulkPut(ctx, []*domain.GuestRecord{Guest("AAAA2222BB", "g1")}, service.PutInsert)

		renamed := Guest("AAAA2222BB", "g1")
		renamed.Name = "Renamed"
		n, err := s.BulkPut(ctx, []*domain.GuestRecord{renamed, Guest("CCCC3333DD", "g2")}, service.PutSkipExisting)
		if err != nil || n != 1 {
			t.Fatalf("BulkPut(skip) = %d, %v; want 1", n, err)
		}
		if g, _ := s.Get(ctx, "AAAA2222BB"); g.Name != "Guest g1" {
			t.Errorf("skip mode overwrote record: %q", g.Name)
		}

		n, err = s.BulkPut(ctx, []*domain.GuestRecord{renamed}, service.PutOverwrite)
		if err != nil || n != 1 {
			t.Fatalf("BulkPut(overwrite) = %d, %v; want 1", n, err)
		}
		if g, _ := s.Get(ctx, "AAAA2222BB"); g.Name != "Renamed" {
			t.Errorf("overwrite mode kept old record: %q", g.Name)
		}
	})

	t.Run("BulkPutConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		batch := []*domain.GuestRecord{
			Guest("AAAA2222BB", "g1"), Guest("CCCC3333DD", "g2"),
			Guest("EEEE4444FF", "g3"), Guest("GGGG5555HH", "g4"),
		}

		var total atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := s.BulkPut(ctx, batch, service.PutSkipExisting)
				if err != nil {
					errs <- err
					return
				}
				total.Add(int32(n))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent BulkPut(skip) error = %v", err)
		}
		if total.Load() != int32(len(batch)) {
			t.Errorf("records written = %d, want %d", total.Load(), len(batch))
		}
		if c, _ := s.Count(ctx); c != len(batch) {
			t.Errorf("Count() = %d, want %d", c, len(batch))
		}
	})

	t.Run("BulkPutInsertConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.BulkPut(ctx, []*domain.GuestRecord{Guest("AAAA2222BB", "g1")}, service.PutInsert)
				switch {
				case err == nil:
					wins.Add(1)
				case !errors.Is(err, domain.ErrGuestConflict):
					t.Errorf("BulkPut(insert) error = %v, want nil or ErrGuestConflict", err)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Errorf("BulkPut(insert) succeeded %d times, want exactly 1", wins.Load())
		}
	})

	t.Run("MarkUsed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, _ = s.BulkPut(ctx, []*domain.GuestRecord{Guest("AAAA2222BB", "g1")}, service.PutInsert)
		at := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)

		ok, err := s.MarkUsed(ctx, "AAAA2222BB", at)
		if err != nil || !ok {
			t.Fatalf("MarkUsed() = %v, %v; want true", ok, err)
		}
		ok, err = s.MarkUsed(ctx, "AAAA2222BB", at.Add(time.Hour))
		if err != nil || ok {
			t.Fatalf("second MarkUsed() = %v, %v; want false", ok, err)
		}
		g, _ := s.Get(ctx, "AAAA2222BB")
		if !g.Used || g.CompletedAt == nil || !g.CompletedAt.Equal(at) {
			t.Errorf("record after MarkUsed = %+v", g)
		}
		if _, err := s.MarkUsed(ctx, "ZZZZ9999ZZ", at); !errors.Is(err, domain.ErrGuestNotFound) {
			t.Errorf("MarkUsed(missing) error = %v", err)
		}
	})

	t.Run("MarkUsedConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, _ = s.BulkPut(ctx, []*domain.GuestRecord{Guest("AAAA2222BB", "g1")}, service.PutInsert)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, err := s.MarkUsed(ctx, "AAAA2222BB", time.Now()); err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Errorf("MarkUsed succeeded %d times, want exactly 1", wins.Load())
		}
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var batch []*domain.GuestRecord
		for i := 0; i < 5; i++ {
			batch = append(batch, Guest(fmt.Sprintf("TOKEN%05d", i), fmt.Sprintf("g%d", i%3)))
		}
		_, _ = s.BulkPut(ctx, batch, service.PutInsert)
		_, _ = s.MarkUsed(ctx, "TOKEN00001", time.Now())

		all, _ := s.List(ctx, service.GuestFilter{})
		if len(all) != 5 || all[0].Token != "TOKEN00000" || all[4].Token != "TOKEN00004" {
			t.Errorf("List() = %d records, want 5 sorted", len(all))
		}
		byGuest, _ := s.List(ctx, service.GuestFilter{GuestID: "g0"})
		if len(byGuest) != 2 {
			t.Errorf("List(guest g0) = %d, want 2", len(byGuest))
		}
		used := true
		usedOnly, _ := s.List(ctx, service.GuestFilter{Used: &used})
		if len(usedOnly) != 1 || usedOnly[0].Token != "TOKEN00001" {
			t.Errorf("List(used) = %v", usedOnly)
		}
		limited, _ := s.List(ctx, service.GuestFilter{Limit: 2})
		if len(limited) != 2 {
			t.Errorf("List(limit 2) = %d", len(limited))
		}
	})

	t.Run("Campaign", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.GetCampaign(ctx); !errors.Is(err, domain.ErrCampaignNotFound) {
			t.Fatalf("GetCampaign() error = %v, want ErrCampaignNotFound", err)
		}
		c := &domain.Campaign{
			ID:        "cmp-1",
			Name:      "Jane & Alex",
			EventDate: time.Date(2026, 9, 12, 16, 0, 0, 0, time.UTC),
			TokenTTL:  30 * 24 * time.Hour,
			Templates: map[string]string{"invite": "Hi {{name}}"},
		}
		if err := s.PutCampaign(ctx, c); err != nil {
			t.Fatalf("PutCampaign() error = %v", err)
		}
		got, err := s.GetCampaign(ctx)
		if err != nil || got.Name != c.Name || got.Templates["invite"] != "Hi {{name}}" || got.TokenTTL != c.TokenTTL {
			t.Errorf("GetCampaign() = %+v, %v", got, err)
		}
	})
}
