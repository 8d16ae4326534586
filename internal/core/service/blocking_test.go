package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
)

func newTestBlocker(t *testing.T, h *harness) *Blocker {
	t.Helper()
	b, err := NewBlocker(h.blocks, h.events,
		WithBlockerClock(h.clock.Now),
		WithBlockerLogger(logger.Discard()),
		WithUnblockReset(h.failures, h.limiter),
	)
	if err != nil {
		t.Fatalf("NewBlocker() error = %v", err)
	}
	return b
}

func TestNewBlocker_RequiresDeps(t *testing.T) {
	if _, err := NewBlocker(nil, nil); err == nil {
		t.Error("NewBlocker(nil, nil) error = nil")
	}
}

func TestBlocker_BlockWithTTL(t *testing.T) {
	h := newHarness(t)
	b := newTestBlocker(t, h)
	ctx := context.Background()
	tok := h.issue(t, "Jane Doe", domain.DefaultTokenTTL)

	entry, err := b.Block(ctx, BlockRequest{Identifier: " 203.0.113.9 ", Reason: "chargeback fraud", TTL: time.Hour})
	if err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if entry.Identifier != "203.0.113.9" || entry.Automatic {
		t.Errorf("Block() entry = %+v", entry)
	}
	if !entry.ExpiresAt.Equal(h.clock.Now().Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want now+1h", entry.ExpiresAt)
	}
	if got := h.eventCount(domain.EventIdentifierBlocked); got != 1 {
		t.Errorf("identifier_blocked events = %d, want 1", got)
	}

	res := h.v.Validate(ctx, ValidateRequest{Token: tok, Identifier: "203.0.113.9", UserAgent: testUA})
	if res.Reason != domain.ReasonIPBlocked {
		t.Errorf("Validate() reason = %s, want %s", res.Reason, domain.ReasonIPBlocked)
	}

	h.clock.Advance(time.Hour + time.Second)
	res = h.v.Validate(ctx, ValidateRequest{Token: tok, Identifier: "203.0.113.9", UserAgent: testUA})
	if !res.Valid {
		t.Errorf("Validate() after expiry reason = %s, want ok", res.Reason)
	}
}

func TestBlocker_PermanentAndDefaultReason(t *testing.T) {
	h := newHarness(t)
	b := newTestBlocker(t, h)

	entry, err := b.Block(context.Background(), BlockRequest{Identifier: "198.51.100.1"})
	if err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if !entry.ExpiresAt.IsZero() || entry.Reason != "manual" {
		t.Errorf("Block() entry = %+v, want permanent manual block", entry)
	}

	h.clock.Advance(365 * 24 * time.Hour)
	entries, err := b.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List() = %d entries, want 1", len(entries))
	}
}

func TestBlocker_InvalidRequests(t *testing.T) {
	h := newHarness(t)
	b := newTestBlocker(t, h)

	tests := []struct {
		name string
		req  BlockRequest
		want *domain.DomainError
	}{
		{"blank identifier", BlockRequest{Identifier: "  "}, domain.ErrMissingArgument},
		{"negative ttl", BlockRequest{Identifier: "x", TTL: -time.Second}, domain.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Block(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Block() error = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := b.Unblock(context.Background(), ""); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Unblock(\"\") error = %v", err)
	}
}

func TestBlocker_UnblockReleasesAutomaticBlock(t *testing.T) {
	h := newHarness(t)
	b := newTestBlocker(t, h)
	ctx := context.Background()
	const id = "192.0.2.50"

	for i := 0; i < 12; i++ {
		h.v.Validate(ctx, ValidateRequest{Token: h.wrongChecksum(t), Identifier: id, UserAgent: testUA})
		h.clock.Advance(800 * time.Millisecond)
	}
	if _, blocked, _ := h.blocks.Lookup(ctx, id, h.clock.Now()); !blocked {
		t.Fatal("identifier not automatically blocked")
	}

	removed, err := b.Unblock(ctx, id)
	if err != nil || !removed {
		t.Fatalf("Unblock() = %v, %v, want true, nil", removed, err)
	}
	if got := h.failures.Count(id, time.Hour); got != 0 {
		t.Errorf("failures after unblock = %d, want 0", got)
	}
	if got := h.eventCount(domain.EventIdentifierUnblocked); got != 1 {
		t.Errorf("identifier_unblocked events = %d, want 1", got)
	}

	h.clock.Advance(6 * time.Minute)
	tok := h.issue(t, "Jane Doe", domain.DefaultTokenTTL)
	res := h.v.Validate(ctx, ValidateRequest{Token: tok, Identifier: id, UserAgent: testUA})
	if !res.Valid {
		t.Errorf("Validate() after unblock reason = %s, want ok", res.Reason)
	}

	removed, err = b.Unblock(ctx, id)
	if err != nil || removed {
		t.Errorf("second Unblock() = %v, %v, want false, nil", removed, err)
	}
	if got := h.eventCount(domain.EventIdentifierUnblocked); got != 1 {
		t.Errorf("identifier_unblocked events = %d, want still 1", got)
	}
}

func TestBlocker_Cleanup(t *testing.T) {
	h := newHarness(t)
	b := newTestBlocker(t, h)
	ctx := context.Background()

	_, _ = b.Block(ctx, BlockRequest{Identifier: "short", TTL: time.Minute})
	_, _ = b.Block(ctx, BlockRequest{Identifier: "forever"})
	h.clock.Advance(2 * time.Minute)

	removed, err := b.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed = %d, want 1", removed)
	}
	entries, _ := b.List(ctx)
	if len(entries) != 1 || entries[0].Identifier != "forever" {
		t.Errorf("List() = %+v", entries)
	}
}
