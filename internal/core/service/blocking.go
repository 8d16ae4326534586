package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

// WindowResetter clears an identifier's rate limit state.
type WindowResetter interface {
	Reset(ctx context.Context, identifier string) error
}

// Blocker manages operator blocks. Automatic blocks written by the
// Validator are listed and removed through it as well.
type Blocker struct {
	blocks   security.BlockList
	events   EventRecorder
	failures *security.FailureTracker
	windows  WindowResetter
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metric.Registry
}

// BlockerOption configures a Blocker.
type BlockerOption func(*Blocker)

// WithBlockerClock overrides time.Now.
func WithBlockerClock(now func() time.Time) BlockerOption {
	return func(b *Blocker) { b.now = now }
}

// WithBlockerLogger sets the logger.
func WithBlockerLogger(logger *slog.Logger) BlockerOption {
	return func(b *Blocker) { b.logger = logger }
}

// WithBlockerMetrics sets the metrics registry.
func WithBlockerMetrics(m *metric.Registry) BlockerOption {
	return func(b *Blocker) { b.metrics = m }
}

// WithUnblockReset clears failure history and rate limit windows on
// Unblock, so a released identifier starts clean.
func WithUnblockReset(failures *security.FailureTracker, windows WindowResetter) BlockerOption {
	return func(b *Blocker) {
		b.failures = failures
		b.windows = windows
	}
}

// NewBlocker returns a Blocker over blocks that records to events.
func NewBlocker(blocks security.BlockList, events EventRecorder, opts ...BlockerOption) (*Blocker, error) {
	if blocks == nil || events == nil {
		return nil, errors.New("service: blocker needs a block list and an event recorder")
	}
	b := &Blocker{
		blocks: blocks,
		events: events,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// BlockRequest is a manual block. A zero TTL blocks permanently.
type BlockRequest struct {
	Identifier string
	Reason     string
	TTL        time.Duration
}

// Block adds or replaces identifier's entry.
func (b *Blocker) Block(ctx context.Context, req BlockRequest) (domain.BlockEntry, error) {
	id := strings.TrimSpace(req.Identifier)
	if id == "" {
		return domain.BlockEntry{}, domain.ErrMissingArgument.WithDetails("identifier")
	}
	if req.TTL < 0 {
		return domain.BlockEntry{}, domain.ErrInvalidArgument.WithDetails("ttl must not be negative")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}

	now := b.now()
	entry := domain.BlockEntry{
		Identifier: id,
		Reason:     reason,
		BlockedAt:  now,
	}
	if req.TTL > 0 {
		entry.ExpiresAt = now.Add(req.TTL)
	}
	if err := b.blocks.Block(ctx, entry); err != nil {
		return domain.BlockEntry{}, domain.ErrStorageError.WithCause(err)
	}

	md := map[string]string{"reason": reason, "automatic": "false"}
	if req.TTL > 0 {
		md["ttl_seconds"] = strconv.FormatInt(int64(req.TTL/time.Second), 10)
	}
	b.events.Record(ctx, domain.SecurityEvent{
		Type:       domain.EventIdentifierBlocked,
		Identifier: id,
		Severity:   domain.SeverityHigh,
		Metadata:   md,
	})
	b.logger.Info("identifier blocked", "identifier", id, "reason", reason, "ttl", req.TTL)
	b.refreshGauge(ctx)
	return entry, nil
}

// Unblock removes identifier's entry and reports whether one existed.
func (b *Blocker) Unblock(ctx context.Context, identifier string) (bool, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return false, domain.ErrMissingArgument.WithDetails("identifier")
	}
	removed, err := b.blocks.Unblock(ctx, id)
	if err != nil {
		return false, domain.ErrStorageError.WithCause(err)
	}
	if !removed {
		return false, nil
	}

	if b.failures != nil {
		b.failures.Reset(id)
	}
	if b.windows != nil {
		if err := b.windows.Reset(ctx, id); err != nil {
			b.logger.Warn("rate limit reset after unblock failed", "identifier", id, "error", err)
		}
	}
	b.events.Record(ctx, domain.SecurityEvent{
		Type:       domain.EventIdentifierUnblocked,
		Identifier: id,
		Severity:   domain.SeverityLow,
	})
	b.logger.Info("identifier unblocked", "identifier", id)
	b.refreshGauge(ctx)
	return true, nil
}

// List returns the active entries.
func (b *Blocker) List(ctx context.Context) ([]domain.BlockEntry, error) {
	entries, err := b.blocks.List(ctx, b.now())
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	b.metrics.SetBlockedIdentifiers(len(entries))
	return entries, nil
}

// expirer is implemented by block lists that hold entries in process.
type expirer interface {
	Cleanup(now time.Time) int
}

// Cleanup drops expired entries from in-process block lists and refreshes
// the gauge. Other lists drop expired entries lazily on Lookup.
func (b *Blocker) Cleanup(ctx context.Context) (int, error) {
	removed := 0
	if e, ok := b.blocks.(expirer); ok {
		removed = e.Cleanup(b.now())
	}
	if _, err := b.List(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

func (b *Blocker) refreshGauge(ctx context.Context) {
	if b.metrics == nil {
		return
	}
	if entries, err := b.blocks.List(ctx, b.now()); err == nil {
		b.metrics.SetBlockedIdentifiers(len(entries))
	}
}
