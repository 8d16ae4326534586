package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/ratelimit"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
	"github.com/yndnr/rsvpguard/pkg/token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockStore is a minimal TokenStore and CampaignStore.
type mockStore struct {
	mu       sync.Mutex
	guests   map[string]*domain.GuestRecord
	campaign *domain.Campaign
	getErr   error
}

func newMockStore() *mockStore {
	return &mockStore{guests: make(map[string]*domain.GuestRecord)}
}

func (m *mockStore) Get(_ context.Context, tok string) (*domain.GuestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	g, ok := m.guests[tok]
	if !ok {
		return nil, domain.ErrGuestNotFound
	}
	return g.Clone(), nil
}

func (m *mockStore) MarkUsed(_ context.Context, tok string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[tok]
	if !ok {
		return false, domain.ErrGuestNotFound
	}
	return g.MarkUsed(at), nil
}

func (m *mockStore) BulkPut(_ context.Context, records []*domain.GuestRecord, mode PutMode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode == PutInsert {
		for _, g := range records {
			if _, ok := m.guests[g.Token]; ok {
				return 0, domain.ErrGuestConflict
			}
		}
	}
	n := 0
	for _, g := range records {
		if _, ok := m.guests[g.Token]; ok && mode == PutSkipExisting {
			continue
		}
		m.guests[g.Token] = g.Clone()
		n++
	}
	return n, nil
}

func (m *mockStore) Exists(_ context.Context, tok string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.guests[tok]
	return ok, nil
}

func (m *mockStore) List(_ context.Context, f GuestFilter) ([]*domain.GuestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GuestRecord
	for _, g := range m.guests {
		if f.Match(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *mockStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guests), nil
}

func (m *mockStore) GetCampaign(context.Context) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.campaign == nil {
		return nil, domain.ErrCampaignNotFound
	}
	return m.campaign.Clone(), nil
}

func (m *mockStore) PutCampaign(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaign = c.Clone()
	return nil
}

// stubLimiter returns a fixed decision and counts calls.
type stubLimiter struct {
	mu       sync.Mutex
	decision ratelimit.Decision
	calls    int
}

func (s *stubLimiter) Check(context.Context, string) ratelimit.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.decision
}

func (s *stubLimiter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingBlockList fails every call.
type failingBlockList struct{ security.BlockList }

func (failingBlockList) Lookup(context.Context, string, time.Time) (domain.BlockEntry, bool, error) {
	return domain.BlockEntry{}, false, errors.New("redis: connection refused")
}

// harness wires a Validator over real components with a fake clock.
type harness struct {
	clock    *fakeClock
	codec    *token.Codec
	store    *mockStore
	blocks   *security.MemoryBlockList
	limiter  *ratelimit.Limiter
	events   *security.EventLog
	policy   *security.PolicyHolder
	failures *security.FailureTracker
	v        *Validator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(),
		codec:  token.MustNew(token.Options{}),
		store:  newMockStore(),
		blocks: security.NewMemoryBlockList(),
		policy: security.NewPolicyHolder(security.DefaultPolicy()),
	}
	var err error
	h.limiter, err = ratelimit.New(ratelimit.DefaultConfig(), ratelimit.NewMemoryStore(),
		ratelimit.WithClock(h.clock.Now), ratelimit.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("ratelimit.New() error = %v", err)
	}
	h.events = security.NewEventLog(1000, security.WithEventClock(h.clock.Now), security.WithEventLogger(logger.Discard()))
	h.failures = security.NewFailureTracker(0, h.clock.Now)
	h.v = h.build(t, h.limiter, h.blocks)
	return h
}

func (h *harness) build(t *testing.T, limiter RateLimiter, blocks security.BlockList) *Validator {
	t.Helper()
	v, err := NewValidator(ValidatorDeps{
		Codec:     h.codec,
		Store:     h.store,
		BlockList: blocks,
		Limiter:   limiter,
		Events:    h.events,
		Analyzer:  security.NewAnalyzer(h.policy, h.failures, h.clock.Now),
		Policy:    h.policy,
		Failures:  h.failures,
	}, WithValidatorClock(h.clock.Now), WithValidatorLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return v
}

// issue stores a fresh guest token and returns it.
func (h *harness) issue(t *testing.T, name string, ttl time.Duration) string {
	t.Helper()
	tok, err := h.codec.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	now := h.clock.Now()
	g := &domain.GuestRecord{
		Token:     tok,
		GuestID:   domain.NewGuestID(),
		Name:      name,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if _, err := h.store.BulkPut(context.Background(), []*domain.GuestRecord{g}, PutInsert); err != nil {
		t.Fatalf("BulkPut() error = %v", err)
	}
	return tok
}

// wrongChecksum returns a well-formed token whose checksum does not match.
func (h *harness) wrongChecksum(t *testing.T) string {
	t.Helper()
	tok, _ := h.codec.Generate()
	b := []byte(tok)
	last := len(b) - 1
	if b[last] == token.DefaultAlphabet[0] {
		b[last] = token.DefaultAlphabet[1]
	} else {
		b[last] = token.DefaultAlphabet[0]
	}
	if h.codec.VerifyChecksum(string(b)) {
		t.Fatal("mutated token still verifies")
	}
	return string(b)
}

func (h *harness) eventCount(typ domain.EventType) int {
	return len(h.events.Query(time.Time{}, security.Filter{Types: []domain.EventType{typ}}))
}

const testUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
