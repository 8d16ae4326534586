package command

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/server/httpserver/handler"
)

func TestSecuritySummary(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("GET /admin/v1/security/summary", security.Summary{
		WindowHours: 6,
		Total:       9,
		ByType: map[domain.EventType]int{
			domain.EventInvalidToken:  5,
			domain.EventRateLimitHit:  3,
			domain.EventRSVPCompleted: 1,
		},
		TopOffenders: []security.Offender{
			{Identifier: "203.0.113.7", Events: 7, HighestSeverity: domain.SeverityHigh},
		},
		Recommendations: []security.Recommendation{
			{Code: "block-offender", Message: "consider blocking 203.0.113.7", Priority: domain.SeverityHigh},
		},
	})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "security", "summary", "--hours", "6"); err != nil {
		t.Fatalf("summary error = %v", err)
	}
	if q := srv.last().Query; q != "hours=6" {
		t.Errorf("query = %q", q)
	}
	out := r.stdout.String()
	for _, want := range []string{"invalid_token", "total", "Top offenders:", "203.0.113.7", "[high] consider blocking"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "invalid_token") > strings.Index(out, "rate_limit_hit") {
		t.Errorf("types not ordered by count:\n%s", out)
	}
}

func TestSecurityEvents_Query(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("GET /admin/v1/security/events", handler.EventsResponse{
		Events: []domain.SecurityEvent{{
			ID:         "01J00000000000000000000000",
			Type:       domain.EventInvalidToken,
			Severity:   domain.SeverityMedium,
			Identifier: "198.51.100.4",
			Timestamp:  time.Now(),
			Metadata:   map[string]string{"reason": "bad_checksum", "path": "/v1/tokens/validate"},
		}},
		Count: 1,
	})

	r := newCLIRun(t)
	err := r.run(srv.URL, "security", "events",
		"--since", "2h", "--type", "invalid_token", "--type", "token_expired",
		"--identifier", "198.51.100.4", "--min-severity", "medium", "--limit", "50")
	if err != nil {
		t.Fatalf("events error = %v", err)
	}

	q, err := url.ParseQuery(srv.last().Query)
	if err != nil {
		t.Fatalf("ParseQuery() error = %v", err)
	}
	if q.Get("since") != "2h" || q.Get("identifier") != "198.51.100.4" || q.Get("min_severity") != "medium" || q.Get("limit") != "50" {
		t.Errorf("query = %v", q)
	}
	if len(q["type"]) != 2 {
		t.Errorf("type params = %v", q["type"])
	}

	out := r.stdout.String()
	if !strings.Contains(out, "path=/v1/tokens/validate reason=bad_checksum") {
		t.Errorf("event detail not sorted or missing:\n%s", out)
	}
	if !strings.Contains(out, "medium") {
		t.Errorf("severity missing:\n%s", out)
	}
}

func TestSecurityEvents_InvalidSeverity(t *testing.T) {
	srv := newMockServer(t)
	r := newCLIRun(t)
	if err := r.run(srv.URL, "security", "events", "--min-severity", "urgent"); err == nil {
		t.Fatal("events expected error")
	}
	if srv.count("GET", "/admin/v1/security/events") != 0 {
		t.Error("invalid severity reached the server")
	}
}

func TestSecurityBlockUnblock(t *testing.T) {
	srv := newMockServer(t)
	srv.reply("POST /admin/v1/security/blocklist/203.0.113.7", domain.BlockEntry{
		Identifier: "203.0.113.7",
		Reason:     "abuse",
		BlockedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	srv.reply("DELETE /admin/v1/security/blocklist/203.0.113.7", handler.UnblockResponse{Identifier: "203.0.113.7", Removed: true})
	srv.reply("DELETE /admin/v1/security/blocklist/198.51.100.1", handler.UnblockResponse{Identifier: "198.51.100.1"})
	srv.reply("GET /admin/v1/security/blocklist", map[string]any{
		"entries": []domain.BlockEntry{{Identifier: "203.0.113.7", Reason: "abuse", Automatic: true}},
		"count":   1,
	})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "security", "block", "--reason", "abuse", "--ttl", "1h", "203.0.113.7"); err != nil {
		t.Fatalf("block error = %v", err)
	}
	var req handler.BlockRequest
	decodeBody(t, srv.last().Body, &req)
	if req.Reason != "abuse" || req.TTL != "1h0m0s" {
		t.Errorf("block request = %+v", req)
	}
	if !strings.Contains(r.stdout.String(), "Blocked 203.0.113.7") {
		t.Errorf("block output = %q", r.stdout.String())
	}

	r.stdout.Reset()
	if err := r.run(srv.URL, "security", "blocklist"); err != nil {
		t.Fatalf("blocklist error = %v", err)
	}
	if out := r.stdout.String(); !strings.Contains(out, "203.0.113.7") || !strings.Contains(out, "never") {
		t.Errorf("blocklist output = %q", out)
	}

	r.stdout.Reset()
	if err := r.run(srv.URL, "security", "unblock", "203.0.113.7"); err != nil {
		t.Fatalf("unblock error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "Unblocked 203.0.113.7") {
		t.Errorf("unblock output = %q", r.stdout.String())
	}

	r.stdout.Reset()
	if err := r.run(srv.URL, "security", "unblock", "198.51.100.1"); err != nil {
		t.Fatalf("unblock error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "was not blocked") {
		t.Errorf("unblock output = %q", r.stdout.String())
	}

	if err := r.run(srv.URL, "security", "block"); err == nil {
		t.Error("block without identifier expected error")
	}
}

func TestSecurityBlocklist_WideAndEmpty(t *testing.T) {
	srv := newMockServer(t)
	expires := time.Now().Add(2 * time.Hour)
	srv.reply("GET /admin/v1/security/blocklist", map[string]any{
		"entries": []domain.BlockEntry{
			{Identifier: "203.0.113.7", Reason: "manual", BlockedAt: time.Now(), ExpiresAt: expires},
		},
		"count": 1,
	})

	r := newCLIRun(t)
	if err := r.run(srv.URL, "--wide", "security", "blocklist"); err != nil {
		t.Fatalf("blocklist error = %v", err)
	}
	out := r.stdout.String()
	for _, want := range []string{"IDENTIFIER", "REMAINING", "manual", "203.0.113.7"} {
		if !strings.Contains(out, want) {
			t.Errorf("wide blocklist output missing %q: %q", want, out)
		}
	}

	empty := newMockServer(t)
	empty.reply("GET /admin/v1/security/blocklist", map[string]any{"entries": []domain.BlockEntry{}, "count": 0})
	r = newCLIRun(t)
	if err := r.run(empty.URL, "security", "blocklist"); err != nil {
		t.Fatalf("blocklist error = %v", err)
	}
	if !strings.Contains(r.stdout.String(), "No blocked identifiers") {
		t.Errorf("empty blocklist output = %q", r.stdout.String())
	}
}

func TestBlockRows(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := blockRows([]domain.BlockEntry{
		{Identifier: "a", Automatic: true},
		{Identifier: "b", ExpiresAt: now.Add(90 * time.Minute)},
	}, now)

	if rows[0].Expires != "never" || rows[0].Remaining != "-" || !rows[0].Auto {
		t.Errorf("permanent row = %+v", rows[0])
	}
	if rows[1].Remaining != "1h30m0s" {
		t.Errorf("Remaining = %q, want 1h30m0s", rows[1].Remaining)
	}
}

func TestSortedCounts(t *testing.T) {
	rows := sortedCounts(map[domain.EventType]int{"b": 2, "a": 2, "c": 5})
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.key
	}
	if strings.Join(got, ",") != "c,a,b" {
		t.Errorf("sortedCounts() order = %v", got)
	}
}
