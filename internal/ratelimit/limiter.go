package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

// Limiter answers admission checks for source identifiers.
type Limiter struct {
	cfg      Config
	store    WindowStore
	fallback WindowStore
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metric.Registry

	// breaker skips the primary store for breakerCooldown after
	// breakerThreshold consecutive failures.
	mu            sync.Mutex
	failures      int
	skipPrimaryTo time.Time
}

const (
	breakerThreshold = 5
	breakerCooldown  = 10 * time.Second
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithFallback sets the store used while the primary store is failing.
// When the primary is not a MemoryStore and no fallback is given, a fresh
// MemoryStore is used.
func WithFallback(store WindowStore) Option {
	return func(l *Limiter) { l.fallback = store }
}

// New validates cfg and returns a Limiter over store.
func New(cfg Config, store WindowStore, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		cfg:    cfg,
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	if _, isMemory := l.store.(*MemoryStore); !isMemory && l.fallback == nil {
		l.fallback = NewMemoryStore()
	}
	return l, nil
}

// Config returns the limiter thresholds.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check counts one request from identifier and reports whether it may
// proceed. Check never fails: when the primary store errors the fallback
// store answers and the decision is marked Degraded.
func (l *Limiter) Check(ctx context.Context, identifier string) Decision {
	now := l.now()

	if l.primaryAvailable(now) {
		d, err := l.store.Admit(ctx, identifier, now, l.cfg)
		if err == nil {
			l.recordSuccess()
			l.observe(d)
			return d
		}
		l.recordFailure(now)
		l.logger.Warn("rate limit store failed, using fallback", "identifier", identifier, "error", err)
	}

	if l.fallback == nil {
		// Primary is the memory store and cannot fail; unreachable in practice.
		return Decision{Allowed: true, Degraded: true, ResetAt: now.Add(l.cfg.Window)}
	}
	d, err := l.fallback.Admit(ctx, identifier, now, l.cfg)
	if err != nil {
		l.logger.Error("rate limit fallback failed", "identifier", identifier, "error", err)
		return Decision{Allowed: true, Degraded: true, ResetAt: now.Add(l.cfg.Window)}
	}
	d.Degraded = true
	l.observe(d)
	return d
}

// Peek returns identifier's window without counting a request.
func (l *Limiter) Peek(ctx context.Context, identifier string) (Window, bool, error) {
	return l.store.Peek(ctx, identifier)
}

// Reset clears identifier's window and burst block in every store.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if l.fallback != nil {
		_ = l.fallback.Reset(ctx, identifier)
	}
	return l.store.Reset(ctx, identifier)
}

// Cleanup removes expired windows and returns how many were dropped.
// It is meant for a background ticker.
func (l *Limiter) Cleanup(ctx context.Context) int {
	now := l.now()
	removed, err := l.store.Cleanup(ctx, now)
	if err != nil {
		l.logger.Warn("rate limit cleanup failed", "error", err)
	}
	if l.fallback != nil {
		n, _ := l.fallback.Cleanup(ctx, now)
		removed += n
	}
	if count, err := l.store.Count(ctx); err == nil {
		l.metrics.SetRateLimitWindows(count)
	}
	return removed
}

func (l *Limiter) observe(d Decision) {
	outcome := "allowed"
	if !d.Allowed {
		outcome = string(d.Reason)
	}
	l.metrics.ObserveRateLimit(outcome)
}

func (l *Limiter) primaryAvailable(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !now.Before(l.skipPrimaryTo)
}

func (l *Limiter) recordFailure(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
	if l.failures >= breakerThreshold {
		l.skipPrimaryTo = now.Add(breakerCooldown)
		l.failures = 0
	}
}

func (l *Limiter) recordSuccess() {
	l.mu.Lock()
	l.failures = 0
	l.mu.Unlock()
}
