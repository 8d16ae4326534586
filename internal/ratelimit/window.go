package ratelimit

import "time"

// Reason explains a denial.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonBlocked     Reason = "blocked"
	ReasonRateLimited Reason = "rate_limited"
)

// Decision is the result of one admission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Reason    Reason    `json:"reason,omitempty"`

	// Degraded is set when the primary store failed and the in-process
	// fallback answered instead.
	Degraded bool `json:"degraded,omitempty"`
}

// RetryAfter returns how long the caller should wait before retrying.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Window is the per-identifier limiter state.
type Window struct {
	Count        int       `json:"count"`
	ResetAt      time.Time `json:"reset_at"`
	BlockedUntil time.Time `json:"blocked_until,omitempty"`
}

// Expired reports whether neither the window nor a block is live at now.
func (w *Window) Expired(now time.Time) bool {
	return !now.Before(w.ResetAt) && !now.Before(w.BlockedUntil)
}

// admit applies one request to w. Callers hold w's lock.
//
// Order: active block, window expiry, burst, window ceiling, increment.
func admit(w *Window, now time.Time, cfg Config) Decision {
	if !w.BlockedUntil.IsZero() {
		if now.Before(w.BlockedUntil) {
			return Decision{ResetAt: w.BlockedUntil, Reason: ReasonBlocked}
		}
		// Cooldown over: start clean rather than re-block on the stale count.
		w.BlockedUntil = time.Time{}
		w.ResetAt = time.Time{}
	}

	if !now.Before(w.ResetAt) {
		w.Count = 1
		w.ResetAt = now.Add(cfg.Window)
		return Decision{Allowed: true, Remaining: cfg.ceiling() - 1, ResetAt: w.ResetAt}
	}

	if w.Count+1 > cfg.BurstLimit {
		w.BlockedUntil = now.Add(cfg.Cooldown)
		return Decision{ResetAt: w.BlockedUntil, Reason: ReasonBlocked}
	}

	if w.Count >= cfg.WindowLimit {
		return Decision{ResetAt: w.ResetAt, Reason: ReasonRateLimited}
	}

	w.Count++
	return Decision{Allowed: true, Remaining: max(cfg.ceiling()-w.Count, 0), ResetAt: w.ResetAt}
}
