package security

import (
	"strings"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// Signal names reported by Analyze.
const (
	SignalBotUserAgent     = "bot_user_agent"
	SignalExploitUserAgent = "exploit_user_agent"
	SignalMissingUserAgent = "missing_user_agent"
	SignalRapidRequests    = "rapid_requests"
	SignalTokenEnumeration = "token_enumeration"
)

// Analysis is the outcome of Analyze.
type Analysis struct {
	IsSuspicious bool            `json:"is_suspicious"`
	Severity     domain.Severity `json:"severity"`
	Signals      []string        `json:"signals,omitempty"`
}

// Analyzer classifies requests by user agent and recent behaviour.
// It never blocks anything itself.
type Analyzer struct {
	policy   *PolicyHolder
	failures *FailureTracker
	now      func() time.Time
}

// NewAnalyzer returns an Analyzer reading thresholds from policy. failures
// may be nil; when set its counts are added to invalid-token events.
func NewAnalyzer(policy *PolicyHolder, failures *FailureTracker, now func() time.Time) *Analyzer {
	if now == nil {
		now = time.Now
	}
	return &Analyzer{policy: policy, failures: failures, now: now}
}

// Analyze evaluates every signal and reports the worst severity.
// recent should hold identifier's events from at least the longest window.
func (a *Analyzer) Analyze(userAgent, identifier string, recent []domain.SecurityEvent) Analysis {
	p := a.policy.Load()
	var res Analysis
	hit := func(signal string, sev domain.Severity) {
		res.Signals = append(res.Signals, signal)
		res.Severity = domain.MaxSeverity(res.Severity, sev)
	}

	ua := strings.ToLower(strings.TrimSpace(userAgent))
	switch {
	case containsAny(ua, p.ExploitUserAgents):
		hit(SignalExploitUserAgent, domain.SeverityCritical)
	case containsAny(ua, p.BotUserAgents):
		hit(SignalBotUserAgent, domain.SeverityMedium)
	}
	if len(ua) < p.MinUserAgentLength {
		hit(SignalMissingUserAgent, domain.SeverityMedium)
	}

	now := a.now()
	rapidSince := now.Add(-p.RapidRequestWindow)
	enumSince := now.Add(-p.EnumerationWindow)
	var total, invalid int
	for i := range recent {
		ev := &recent[i]
		if ev.Identifier != identifier {
			continue
		}
		if !ev.Timestamp.Before(rapidSince) {
			total++
		}
		if ev.Type == domain.EventInvalidToken && !ev.Timestamp.Before(enumSince) {
			invalid++
		}
	}
	if a.failures != nil {
		invalid += a.failures.Count(identifier, p.EnumerationWindow)
	}

	if total > p.RapidRequestThreshold {
		hit(SignalRapidRequests, domain.SeverityHigh)
	}
	if invalid > p.EnumerationThreshold {
		hit(SignalTokenEnumeration, domain.SeverityCritical)
	}

	res.IsSuspicious = len(res.Signals) > 0
	return res
}

// LookbackWindow is the longest window Analyze looks at.
func (a *Analyzer) LookbackWindow() time.Duration {
	p := a.policy.Load()
	return max(p.RapidRequestWindow, p.EnumerationWindow)
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
