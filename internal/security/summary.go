package security

import (
	"sort"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// Recommendation thresholds.
const (
	frictionRateLimitHits  = 10
	enumerationInvalidHits = 20
	expiredTokenHits       = 5
	topOffenderCount       = 10
)

// Recommendation codes.
const (
	RecommendAddFriction         = "add_friction"
	RecommendAllowListRanges     = "allow_list_trusted_ranges"
	RecommendHardenTokens        = "harden_tokens"
	RecommendInvestigateCritical = "investigate_critical"
	RecommendReissueExpired      = "reissue_expired_tokens"
)

// Offender is one identifier ranked by event count.
type Offender struct {
	Identifier      string          `json:"identifier"`
	Events          int             `json:"events"`
	HighestSeverity domain.Severity `json:"highest_severity"`
}

// Recommendation is one rule-based suggestion.
type Recommendation struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Priority domain.Severity `json:"priority"`
}

// Summary aggregates the events of a time window.
type Summary struct {
	WindowHours     int                      `json:"window_hours"`
	From            time.Time                `json:"from"`
	To              time.Time                `json:"to"`
	Total           int                      `json:"total"`
	ByType          map[domain.EventType]int `json:"by_type"`
	BySeverity      map[string]int           `json:"by_severity"`
	TopOffenders    []Offender               `json:"top_offenders"`
	Recommendations []Recommendation         `json:"recommendations"`
}

// Summarize reports the last windowHours of events. Results are
// deterministic for a given log content and clock.
func (l *EventLog) Summarize(windowHours int) Summary {
	if windowHours <= 0 {
		windowHours = 24
	}
	to := l.now()
	from := to.Add(-time.Duration(windowHours) * time.Hour)
	events := l.Query(from, Filter{})

	s := Summary{
		WindowHours: windowHours,
		From:        from,
		To:          to,
		Total:       len(events),
		ByType:      make(map[domain.EventType]int),
		BySeverity:  make(map[string]int),
	}

	offenders := make(map[string]*Offender)
	criticalSuspicious := 0
	for i := range events {
		ev := &events[i]
		s.ByType[ev.Type]++
		s.BySeverity[ev.Severity.String()]++
		if ev.Type == domain.EventSuspiciousActivity && ev.Severity == domain.SeverityCritical {
			criticalSuspicious++
		}
		if ev.Identifier == "" || ev.Type == domain.EventTokenAccess || ev.Type == domain.EventRSVPCompleted {
			continue
		}
		o, ok := offenders[ev.Identifier]
		if !ok {
			o = &Offender{Identifier: ev.Identifier}
			offenders[ev.Identifier] = o
		}
		o.Events++
		o.HighestSeverity = domain.MaxSeverity(o.HighestSeverity, ev.Severity)
	}

	s.TopOffenders = make([]Offender, 0, len(offenders))
	for _, o := range offenders {
		s.TopOffenders = append(s.TopOffenders, *o)
	}
	sort.Slice(s.TopOffenders, func(i, j int) bool {
		a, b := s.TopOffenders[i], s.TopOffenders[j]
		if a.Events != b.Events {
			return a.Events > b.Events
		}
		if a.HighestSeverity != b.HighestSeverity {
			return a.HighestSeverity > b.HighestSeverity
		}
		return a.Identifier < b.Identifier
	})
	if len(s.TopOffenders) > topOffenderCount {
		s.TopOffenders = s.TopOffenders[:topOffenderCount]
	}

	s.Recommendations = recommend(s.ByType, criticalSuspicious)
	return s
}

func recommend(byType map[domain.EventType]int, criticalSuspicious int) []Recommendation {
	recs := []Recommendation{}
	if criticalSuspicious > 0 {
		recs = append(recs, Recommendation{
			Code:     RecommendInvestigateCritical,
			Message:  "Critical suspicious activity was detected; review the top offenders and their blocks.",
			Priority: domain.SeverityCritical,
		})
	}
	if byType[domain.EventInvalidToken] > enumerationInvalidHits {
		recs = append(recs, Recommendation{
			Code:     RecommendHardenTokens,
			Message:  "Many invalid token attempts suggest enumeration; consider longer tokens or a keyed checksum seed.",
			Priority: domain.SeverityHigh,
		})
	}
	if byType[domain.EventRateLimitHit] > frictionRateLimitHits {
		recs = append(recs, Recommendation{
			Code:     RecommendAddFriction,
			Message:  "Rate limits are hit frequently; consider adding friction such as a challenge before token entry.",
			Priority: domain.SeverityMedium,
		})
	}
	if byType[domain.EventBlockedIP] > 0 {
		recs = append(recs, Recommendation{
			Code:     RecommendAllowListRanges,
			Message:  "Blocked sources kept retrying; allow-list trusted ranges if legitimate guests share an address.",
			Priority: domain.SeverityMedium,
		})
	}
	if byType[domain.EventTokenExpired] > expiredTokenHits {
		recs = append(recs, Recommendation{
			Code:     RecommendReissueExpired,
			Message:  "Guests are presenting expired tokens; reissue them or extend the campaign token lifetime.",
			Priority: domain.SeverityLow,
		})
	}
	return recs
}
