package security

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
)

func newTestLog(capacity int, clock *fakeClock, opts ...EventLogOption) *EventLog {
	opts = append([]EventLogOption{WithEventClock(clock.Now), WithEventLogger(logger.Discard())}, opts...)
	return NewEventLog(capacity, opts...)
}

func TestEventLog_RecordAssignsIDAndTimestamp(t *testing.T) {
	clock := newFakeClock()
	l := newTestLog(10, clock)

	ev := l.Record(context.Background(), domain.SecurityEvent{
		Type:       domain.EventTokenAccess,
		Identifier: "198.51.100.7",
		Timestamp:  time.Unix(0, 0),
		ID:         "caller-supplied",
	})
	if ev.ID == "" || ev.ID == "caller-supplied" {
		t.Errorf("ID = %q, want generated ULID", ev.ID)
	}
	if !ev.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, clock.Now())
	}
	if ev.Severity != domain.SeverityLow {
		t.Errorf("Severity = %v, want low default", ev.Severity)
	}
}

func TestEventLog_RecordCopiesMetadata(t *testing.T) {
	l := newTestLog(10, newFakeClock())
	md := map[string]string{"route": "/v1/tokens/validate"}
	l.Record(context.Background(), domain.SecurityEvent{Type: domain.EventTokenAccess, Metadata: md})
	md["route"] = "mutated"

	got := l.Query(time.Time{}, Filter{})
	if got[0].Metadata["route"] != "/v1/tokens/validate" {
		t.Errorf("stored metadata changed with caller map: %v", got[0].Metadata)
	}
}

func TestEventLog_EvictsOldestFIFO(t *testing.T) {
	clock := newFakeClock()
	l := newTestLog(3, clock)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		l.Record(ctx, domain.SecurityEvent{Type: domain.EventInvalidToken, Identifier: id})
		clock.Advance(time.Second)
	}

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if l.Evicted() != 2 {
		t.Errorf("Evicted() = %d, want 2", l.Evicted())
	}
	got := l.Query(time.Time{}, Filter{})
	want := []string{"c", "d", "e"}
	for i, ev := range got {
		if ev.Identifier != want[i] {
			t.Errorf("event[%d].Identifier = %q, want %q", i, ev.Identifier, want[i])
		}
	}
}

func TestEventLog_QueryFilters(t *testing.T) {
	clock := newFakeClock()
	l := newTestLog(100, clock)
	ctx := context.Background()

	start := clock.Now()
	l.Record(ctx, domain.SecurityEvent{Type: domain.EventTokenAccess, Identifier: "a"})
	clock.Advance(time.Minute)
	l.Record(ctx, domain.SecurityEvent{Type: domain.EventInvalidToken, Identifier: "a", Severity: domain.SeverityMedium})
	clock.Advance(time.Minute)
	l.Record(ctx, domain.SecurityEvent{Type: domain.EventBlockedIP, Identifier: "b", Severity: domain.SeverityHigh})
	clock.Advance(time.Minute)
	l.Record(ctx, domain.SecurityEvent{Type: domain.EventInvalidToken, Identifier: "b", Severity: domain.SeverityMedium})

	tests := []struct {
		name  string
		since time.Time
		f     Filter
		want  int
	}{
		{"all", time.Time{}, Filter{}, 4},
		{"since", start.Add(90 * time.Second), Filter{}, 2},
		{"by identifier", time.Time{}, Filter{Identifier: "a"}, 2},
		{"by type", time.Time{}, Filter{Types: []domain.EventType{domain.EventInvalidToken}}, 2},
		{"min severity", time.Time{}, Filter{MinSeverity: domain.SeverityHigh}, 1},
		{"limit keeps newest", time.Time{}, Filter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.Query(tt.since, tt.f)
			if len(got) != tt.want {
				t.Fatalf("Query() returned %d events, want %d", len(got), tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Timestamp.Before(got[i-1].Timestamp) {
					t.Errorf("Query() not oldest first at %d", i)
				}
			}
		})
	}

	newest := l.Query(time.Time{}, Filter{Limit: 1})
	if newest[0].Identifier != "b" || newest[0].Type != domain.EventInvalidToken {
		t.Errorf("Limit=1 returned %+v, want newest event", newest[0])
	}
}

func TestEventLog_Recent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLog(100, clock)
	ctx := context.Background()

	l.Record(ctx, domain.SecurityEvent{Type: domain.EventInvalidToken, Identifier: "a"})
	clock.Advance(2 * time.Minute)
	l.Record(ctx, domain.SecurityEvent{Type: domain.EventInvalidToken, Identifier: "a"})
	l.Record(ctx, domain.SecurityEvent{Type: domain.EventInvalidToken, Identifier: "z"})

	if got := l.Recent("a", time.Minute); len(got) != 1 {
		t.Errorf("Recent() = %d events, want 1", len(got))
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	err    error
}

func (s *recordingSink) WriteEvent(_ context.Context, ev domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestEventLog_SinkReceivesEventsAndFailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	l := newTestLog(10, newFakeClock(), WithSink(sink))

	for i := 0; i < 5; i++ {
		l.Record(context.Background(), domain.SecurityEvent{Type: domain.EventTokenAccess})
	}
	l.Close()

	if sink.Len() != 5 {
		t.Errorf("sink received %d events, want 5", sink.Len())
	}
	if l.Len() != 5 {
		t.Errorf("Len() = %d, want 5 despite sink errors", l.Len())
	}
	l.Close()
}

func TestEventLog_ConcurrentRecord(t *testing.T) {
	l := NewEventLog(50, WithEventLogger(logger.Discard()))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Record(context.Background(), domain.SecurityEvent{Type: domain.EventTokenAccess})
			}
		}()
	}
	wg.Wait()

	if l.Len() != 50 {
		t.Errorf("Len() = %d, want 50", l.Len())
	}
	if l.Evicted() != 750 {
		t.Errorf("Evicted() = %d, want 750", l.Evicted())
	}
	got := l.Query(time.Time{}, Filter{})
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("ring out of timestamp order at %d", i)
		}
	}
}

func TestEventLog_SeedKeepsIdentity(t *testing.T) {
	clock := newFakeClock()
	l := newTestLog(2, clock)
	base := clock.Now().Add(-time.Hour)
	l.Seed([]domain.SecurityEvent{
		{ID: "01A", Timestamp: base, Type: domain.EventInvalidToken},
		{ID: "01B", Timestamp: base.Add(time.Minute), Type: domain.EventInvalidToken},
		{ID: "01C", Timestamp: base.Add(2 * time.Minute), Type: domain.EventBlockedIP},
	})

	got := l.Query(time.Time{}, Filter{})
	if len(got) != 2 || got[0].ID != "01B" || got[1].ID != "01C" {
		t.Fatalf("Query() after Seed = %+v", got)
	}
	ev := l.Record(context.Background(), domain.SecurityEvent{Type: domain.EventTokenAccess})
	if newest := l.Query(time.Time{}, Filter{Limit: 1}); newest[0].ID != ev.ID {
		t.Errorf("newest = %s, want recorded event %s", newest[0].ID, ev.ID)
	}
}
