package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/ratelimit"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
	"github.com/yndnr/rsvpguard/pkg/token"
)

// maxUserAgentInEvent bounds the user agent copied into event metadata.
const maxUserAgentInEvent = 256

// RateLimiter admits or denies one request per call.
type RateLimiter interface {
	Check(ctx context.Context, identifier string) ratelimit.Decision
}

// EventRecorder records security events and answers recent-history lookups.
type EventRecorder interface {
	Record(ctx context.Context, ev domain.SecurityEvent) domain.SecurityEvent
	Recent(identifier string, window time.Duration) []domain.SecurityEvent
}

// ValidatorDeps are the collaborators of a Validator. All are required
// except Failures.
type ValidatorDeps struct {
	Codec     *token.Codec
	Store     TokenStore
	BlockList security.BlockList
	Limiter   RateLimiter
	Events    EventRecorder
	Analyzer  *security.Analyzer
	Policy    *security.PolicyHolder
	Failures  *security.FailureTracker
}

// Validator runs the validation pipeline for token presentations.
type Validator struct {
	deps    ValidatorDeps
	now     func() time.Time
	logger  *slog.Logger
	metrics *metric.Registry
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidatorClock overrides time.Now.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

// WithValidatorMetrics sets the metrics registry.
func WithValidatorMetrics(m *metric.Registry) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator checks deps and returns a Validator.
func NewValidator(deps ValidatorDeps, opts ...ValidatorOption) (*Validator, error) {
	switch {
	case deps.Codec == nil:
		return nil, errors.New("service: validator needs a codec")
	case deps.Store == nil:
		return nil, errors.New("service: validator needs a token store")
	case deps.BlockList == nil:
		return nil, errors.New("service: validator needs a block list")
	case deps.Limiter == nil:
		return nil, errors.New("service: validator needs a rate limiter")
	case deps.Events == nil:
		return nil, errors.New("service: validator needs an event recorder")
	case deps.Analyzer == nil || deps.Policy == nil:
		return nil, errors.New("service: validator needs an analyzer and policy")
	}
	v := &Validator{
		deps:   deps,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// ============================================================================
// Validate
// ============================================================================

// ValidateRequest is one token presentation.
type ValidateRequest struct {
	Token      string
	Identifier string // usually the client IP
	UserAgent  string
	Origin     string // Origin header, may be empty
}

// Flags are independent outcome markers; several may be set at once.
type Flags struct {
	RateLimited        bool `json:"rate_limited"`
	SuspiciousActivity bool `json:"suspicious_activity"`
	IPBlocked          bool `json:"ip_blocked"`
	TokenExpired       bool `json:"token_expired"`
	TokenReused        bool `json:"token_reused"`
}

// Result is the uniform outcome of Validate.
type Result struct {
	Valid  bool
	Reason domain.Reason
	// Guest is set on success and for reused tokens.
	Guest *domain.GuestRecord
	// Error is nil on success.
	Error      *domain.DomainError
	Flags      Flags
	RetryAfter time.Duration
	// Signals lists analyzer signals that contributed to the outcome.
	Signals []string
}

func deny(reason domain.Reason) Result {
	return Result{Reason: reason, Error: reason.Err()}
}

// Validate runs the checks in a fixed order and stops at the first failure:
//
//  1. format
//  2. block list
//  3. rate limit
//  4. checksum
//  5. origin
//  6. activity analysis
//  7. store lookup (exists, not used, not expired)
//  8. success
//
// Validate never returns an error; every failure is a Result.
func (v *Validator) Validate(ctx context.Context, req ValidateRequest) (res Result) {
	start := time.Now()
	defer func() {
		v.metrics.ObserveValidation(string(res.Reason), time.Since(start))
	}()

	tok := v.deps.Codec.Normalize(req.Token)
	id := req.Identifier
	now := v.now()

	// 1. Format. Routine typos are only counted.
	if !v.deps.Codec.ValidFormat(tok) {
		return deny(domain.ReasonInvalidFormat)
	}
	fp := token.Fingerprint(tok)

	if res, denied := v.guard(ctx, tok, fp, req, now); denied {
		return res
	}

	// 5. Origin.
	if verdict := security.CheckOrigin(v.deps.Policy.Load(), req.Origin); !verdict.OK {
		v.record(ctx, domain.EventSuspiciousActivity, id, fp, verdict.Severity, map[string]string{
			"problem": verdict.Problem,
			"origin":  req.Origin,
		})
		res = deny(domain.ReasonSuspiciousOrigin)
		res.Flags.SuspiciousActivity = true
		return res
	}

	// 6. Activity analysis. Only critical findings deny.
	analysis := v.analyze(req.UserAgent, id)
	if analysis.Severity == domain.SeverityCritical {
		return v.escalate(ctx, id, fp, req.UserAgent, analysis, now)
	}
	if analysis.IsSuspicious {
		v.record(ctx, domain.EventSuspiciousActivity, id, fp, analysis.Severity, map[string]string{
			"signals":    strings.Join(analysis.Signals, ","),
			"user_agent": truncate(req.UserAgent, maxUserAgentInEvent),
		})
	}

	// 7. Store lookup.
	guest, err := v.deps.Store.Get(ctx, tok)
	switch {
	case errors.Is(err, domain.ErrGuestNotFound):
		v.record(ctx, domain.EventInvalidToken, id, fp, domain.SeverityMedium, nil)
		res = deny(domain.ReasonInvalidToken)
		res.Signals = analysis.Signals
		return res
	case err != nil:
		v.logger.ErrorContext(ctx, "token store lookup failed", "identifier", id, "token_fingerprint", token.ShortFingerprint(tok), "error", err)
		return deny(domain.ReasonInternalError)
	}
	if guest.Used {
		v.record(ctx, domain.EventInvalidToken, id, fp, domain.SeverityLow, map[string]string{
			"guest_id": guest.GuestID,
			"reused":   "true",
		})
		res = deny(domain.ReasonTokenReused)
		res.Guest = guest
		res.Flags.TokenReused = true
		return res
	}
	if guest.IsExpired(now) {
		v.record(ctx, domain.EventTokenExpired, id, fp, domain.SeverityLow, map[string]string{
			"guest_id":   guest.GuestID,
			"expired_at": guest.ExpiresAt.UTC().Format(time.RFC3339),
		})
		res = deny(domain.ReasonTokenExpired)
		res.Flags.TokenExpired = true
		return res
	}

	// 8. Success.
	v.record(ctx, domain.EventTokenAccess, id, fp, domain.SeverityLow, map[string]string{
		"guest_id": guest.GuestID,
	})
	return Result{
		Valid:   true,
		Reason:  domain.ReasonOK,
		Guest:   guest,
		Signals: analysis.Signals,
	}
}

// guard runs the block list, rate limit and checksum checks shared by
// Validate and RecordCompletion. A checksum failure feeds enumeration
// detection and may escalate to a block.
func (v *Validator) guard(ctx context.Context, tok, fp string, req ValidateRequest, now time.Time) (Result, bool) {
	id := req.Identifier

	// 2. Block list.
	entry, blocked, err := v.deps.BlockList.Lookup(ctx, id, now)
	if err != nil {
		v.logger.ErrorContext(ctx, "block list lookup failed", "identifier", id, "error", err)
		return deny(domain.ReasonInternalError), true
	}
	if blocked {
		v.record(ctx, domain.EventBlockedIP, id, fp, domain.SeverityHigh, map[string]string{
			"block_reason": entry.Reason,
			"automatic":    fmt.Sprint(entry.Automatic),
		})
		res := deny(domain.ReasonIPBlocked)
		res.Flags.IPBlocked = true
		res.Flags.SuspiciousActivity = entry.Automatic
		if !entry.ExpiresAt.IsZero() {
			res.RetryAfter = entry.ExpiresAt.Sub(now)
		}
		return res, true
	}

	// 3. Rate limit.
	if d := v.deps.Limiter.Check(ctx, id); !d.Allowed {
		v.record(ctx, domain.EventRateLimitHit, id, fp, domain.SeverityMedium, map[string]string{
			"limit_reason": string(d.Reason),
			"reset_at":     d.ResetAt.UTC().Format(time.RFC3339),
		})
		res := deny(domain.ReasonRateLimited)
		res.Flags.RateLimited = true
		res.RetryAfter = d.RetryAfter(now)
		return res, true
	}

	// 4. Checksum. No full event; the failure feeds enumeration detection.
	if !v.deps.Codec.VerifyChecksum(tok) {
		if v.deps.Failures != nil {
			v.deps.Failures.Add(id)
		}
		analysis := v.analyze(req.UserAgent, id)
		if analysis.Severity == domain.SeverityCritical {
			return v.escalate(ctx, id, fp, req.UserAgent, analysis, now), true
		}
		return deny(domain.ReasonInvalidToken), true
	}
	return Result{}, false
}

func (v *Validator) analyze(userAgent, identifier string) security.Analysis {
	recent := v.deps.Events.Recent(identifier, v.deps.Analyzer.LookbackWindow())
	return v.deps.Analyzer.Analyze(userAgent, identifier, recent)
}

// escalate blocks identifier permanently and denies the request. Later
// requests stop at the block list check.
func (v *Validator) escalate(ctx context.Context, id, fp, userAgent string, analysis security.Analysis, now time.Time) Result {
	signals := strings.Join(analysis.Signals, ",")
	entry := domain.BlockEntry{
		Identifier: id,
		Reason:     signals,
		BlockedAt:  now,
		Automatic:  true,
	}
	if err := v.deps.BlockList.Block(ctx, entry); err != nil {
		v.logger.ErrorContext(ctx, "automatic block failed", "identifier", id, "signals", signals, "error", err)
	} else {
		v.record(ctx, domain.EventIdentifierBlocked, id, "", domain.SeverityCritical, map[string]string{
			"reason":    signals,
			"automatic": "true",
		})
		if v.deps.Failures != nil {
			v.deps.Failures.Reset(id)
		}
	}
	v.record(ctx, domain.EventSuspiciousActivity, id, fp, domain.SeverityCritical, map[string]string{
		"signals":    signals,
		"user_agent": truncate(userAgent, maxUserAgentInEvent),
	})
	v.logger.WarnContext(ctx, "identifier blocked for suspicious activity", "identifier", id, "signals", signals)

	res := deny(domain.ReasonSuspiciousActivity)
	res.Flags.SuspiciousActivity = true
	res.Signals = analysis.Signals
	return res
}

func (v *Validator) record(ctx context.Context, typ domain.EventType, id, fp string, sev domain.Severity, md map[string]string) {
	v.deps.Events.Record(ctx, domain.SecurityEvent{
		Type:             typ,
		Identifier:       id,
		TokenFingerprint: fp,
		Severity:         sev,
		Metadata:         md,
	})
}

// ============================================================================
// Completion
// ============================================================================

// Completion is the outcome of RecordCompletion.
type Completion struct {
	Guest *domain.GuestRecord
	// AlreadyCompleted is set when an earlier call already marked the token used.
	AlreadyCompleted bool
	// RetryAfter is set when the identifier is rate limited or blocked
	// for a bounded time.
	RetryAfter time.Duration
}

// RecordCompletion marks the guest's token used once their RSVP has been
// stored. Calling it again for the same token changes nothing and reports
// AlreadyCompleted.
//
// The presentation goes through the same block list, rate limit and
// checksum checks as Validate, and an unknown token counts towards
// enumeration detection. Unknown and expired tokens are never marked used.
func (v *Validator) RecordCompletion(ctx context.Context, req ValidateRequest) (Completion, error) {
	tok := v.deps.Codec.Normalize(req.Token)
	id := req.Identifier
	now := v.now()
	if !v.deps.Codec.ValidFormat(tok) {
		return Completion{}, domain.ErrTokenMalformed
	}
	fp := token.Fingerprint(tok)

	if res, denied := v.guard(ctx, tok, fp, req, now); denied {
		return Completion{RetryAfter: res.RetryAfter}, res.Error
	}
	if analysis := v.analyze(req.UserAgent, id); analysis.Severity == domain.SeverityCritical {
		return Completion{}, v.escalate(ctx, id, fp, req.UserAgent, analysis, now).Error
	}

	guest, err := v.deps.Store.Get(ctx, tok)
	switch {
	case errors.Is(err, domain.ErrGuestNotFound):
		v.record(ctx, domain.EventInvalidToken, id, fp, domain.SeverityMedium, map[string]string{
			"operation": "complete",
		})
		return Completion{}, domain.ErrTokenInvalid
	case err != nil:
		return Completion{}, domain.ErrStorageError.WithCause(err)
	}
	if guest.Used {
		return Completion{Guest: guest, AlreadyCompleted: true}, nil
	}
	if guest.IsExpired(now) {
		v.record(ctx, domain.EventTokenExpired, id, fp, domain.SeverityLow, map[string]string{
			"guest_id":   guest.GuestID,
			"expired_at": guest.ExpiresAt.UTC().Format(time.RFC3339),
			"operation":  "complete",
		})
		return Completion{}, domain.ErrTokenExpired
	}

	flipped, err := v.deps.Store.MarkUsed(ctx, tok, now)
	if err != nil {
		return Completion{}, domain.ErrStorageError.WithCause(err)
	}
	guest, err = v.deps.Store.Get(ctx, tok)
	if err != nil {
		return Completion{}, domain.ErrStorageError.WithCause(err)
	}
	if !flipped {
		return Completion{Guest: guest, AlreadyCompleted: true}, nil
	}

	v.record(ctx, domain.EventRSVPCompleted, id, fp, domain.SeverityLow, map[string]string{
		"guest_id": guest.GuestID,
	})
	v.logger.InfoContext(ctx, "rsvp completed", "guest_id", guest.GuestID, "token_fingerprint", token.ShortFingerprint(tok))
	return Completion{Guest: guest}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
