package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
)

func newTestIssuer(h *harness) *Issuer {
	i := NewIssuer(h.codec, h.store, h.store, logger.Discard(), nil)
	i.now = h.clock.Now
	return i
}

func TestIssuer_RequiresCampaign(t *testing.T) {
	h := newHarness(t)
	i := newTestIssuer(h)

	_, err := i.IssueCampaign(context.Background(), IssueRequest{Guests: []GuestInput{{Name: "Jane Doe"}}})
	if !errors.Is(err, domain.ErrCampaignNotFound) {
		t.Fatalf("IssueCampaign() error = %v, want ErrCampaignNotFound", err)
	}
}

func TestIssuer_SetCampaign(t *testing.T) {
	h := newHarness(t)
	i := newTestIssuer(h)

	if err := i.SetCampaign(context.Background(), &domain.Campaign{}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("SetCampaign(no name) error = %v", err)
	}
	if err := i.SetCampaign(context.Background(), &domain.Campaign{Name: "x", TokenTTL: -time.Hour}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("SetCampaign(negative ttl) error = %v", err)
	}

	c := &domain.Campaign{Name: "Summer Gala"}
	if err := i.SetCampaign(context.Background(), c); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}
	got, err := h.store.GetCampaign(context.Background())
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}
	if !strings.HasPrefix(got.ID, "cmp-") || got.Name != "Summer Gala" || !got.UpdatedAt.Equal(h.clock.Now()) {
		t.Errorf("stored campaign = %+v", got)
	}
}

func TestIssuer_IssueCampaign(t *testing.T) {
	h := newHarness(t)
	i := newTestIssuer(h)
	ctx := context.Background()
	if err := i.SetCampaign(ctx, &domain.Campaign{Name: "Summer Gala", TokenTTL: 30 * 24 * time.Hour}); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}

	res, err := i.IssueCampaign(ctx, IssueRequest{
		WithBackup: true,
		Guests: []GuestInput{
			{Name: "Jane Doe", Channel: domain.ChannelEmail, Contact: "jane@example.com"},
			{Name: "Alex Smith", Tags: []string{"vip"}},
			{Name: "   "},
		},
	})
	if err != nil {
		t.Fatalf("IssueCampaign() error = %v", err)
	}
	if len(res.Issued) != 2 {
		t.Fatalf("Issued = %d, want 2", len(res.Issued))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %+v, want one for the blank name", res.Failures)
	}
	if n, _ := h.store.Count(ctx); n != 4 {
		t.Errorf("stored records = %d, want 4", n)
	}

	wantExpiry := h.clock.Now().Add(30 * 24 * time.Hour)
	for _, ig := range res.Issued {
		if !h.codec.VerifyChecksum(ig.Token) || !h.codec.VerifyChecksum(ig.BackupToken) {
			t.Errorf("issued tokens for %s do not verify", ig.Name)
		}
		if !ig.ExpiresAt.Equal(wantExpiry) {
			t.Errorf("ExpiresAt = %v, want %v", ig.ExpiresAt, wantExpiry)
		}
		backup, err := h.store.Get(ctx, ig.BackupToken)
		if err != nil {
			t.Fatalf("Get(backup) error = %v", err)
		}
		if backup.BackupOf != ig.Token || backup.GuestID != ig.GuestID {
			t.Errorf("backup record = %+v, want BackupOf %s", backup, ig.Token)
		}
		if backup.Priority != domain.PriorityNormal {
			t.Errorf("Priority = %q, want normal", backup.Priority)
		}
	}
}

func TestIssuer_IssuedTokenValidatesUntilExpiry(t *testing.T) {
	h := newHarness(t)
	i := newTestIssuer(h)
	ctx := context.Background()
	if err := i.SetCampaign(ctx, &domain.Campaign{Name: "Summer Gala", TokenTTL: 60 * 24 * time.Hour}); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}
	res, err := i.IssueCampaign(ctx, IssueRequest{Guests: []GuestInput{{Name: "Jane Doe"}}})
	if err != nil {
		t.Fatalf("IssueCampaign() error = %v", err)
	}
	req := ValidateRequest{Token: res.Issued[0].Token, Identifier: "198.51.100.40", UserAgent: testUA}

	if r := h.v.Validate(ctx, req); !r.Valid || r.Guest.Name != "Jane Doe" {
		t.Fatalf("Validate() = %+v, want valid Jane Doe", r)
	}
	h.clock.Advance(61 * 24 * time.Hour)
	if r := h.v.Validate(ctx, req); r.Valid || !r.Flags.TokenExpired {
		t.Fatalf("Validate() after 61 days = %+v, want tokenExpired", r)
	}
}

func TestIssuer_DuplicateGuestID(t *testing.T) {
	h := newHarness(t)
	i := newTestIssuer(h)
	ctx := context.Background()
	_ = i.SetCampaign(ctx, &domain.Campaign{Name: "Summer Gala"})

	res, err := i.IssueCampaign(ctx, IssueRequest{Guests: []GuestInput{
		{GuestID: "g-1", Name: "Jane Doe"},
		{GuestID: "g-1", Name: "Jane Doe again"},
	}})
	if err != nil {
		t.Fatalf("IssueCampaign() error = %v", err)
	}
	if len(res.Issued) != 1 || len(res.Failures) != 1 || res.Failures[0].GuestID != "g-1" {
		t.Errorf("IssueCampaign() = %+v, want one issued and one duplicate failure", res)
	}
}
