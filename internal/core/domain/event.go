package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordinal seriousness of a security event.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// String returns the lower-case severity name.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity parses a severity name.
func ParseSeverity(v string) (Severity, error) {
	for sev, name := range severityNames {
		if strings.EqualFold(v, name) {
			return sev, nil
		}
	}
	return 0, ErrInvalidArgument.WithDetails("unknown severity: " + v)
}

// MarshalText encodes the severity as its name.
func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityNames[s]; !ok {
		return nil, fmt.Errorf("domain: invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MaxSeverity returns the more serious of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}

// EventType names what happened.
type EventType string

const (
	EventTokenAccess         EventType = "token_access"
	EventInvalidToken        EventType = "invalid_token"
	EventTokenExpired        EventType = "token_expired"
	EventRateLimitHit        EventType = "rate_limit_hit"
	EventBlockedIP           EventType = "blocked_ip"
	EventSuspiciousActivity  EventType = "suspicious_activity"
	EventRSVPCompleted       EventType = "rsvp_completed"
	EventIdentifierBlocked   EventType = "identifier_blocked"
	EventIdentifierUnblocked EventType = "identifier_unblocked"
)

// SecurityEvent is an immutable audit record.
//
// TokenFingerprint is a SHA-256 digest; raw tokens never appear in events.
type SecurityEvent struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	Type             EventType         `json:"type"`
	Identifier       string            `json:"identifier"`
	TokenFingerprint string            `json:"token_fingerprint,omitempty"`
	Severity         Severity          `json:"severity"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Reason is the terminal outcome of one token validation.
type Reason string

const (
	ReasonOK                 Reason = "ok"
	ReasonInvalidFormat      Reason = "invalid_format"
	ReasonIPBlocked          Reason = "ip_blocked"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonInvalidToken       Reason = "invalid_token"
	ReasonSuspiciousOrigin   Reason = "suspicious_origin"
	ReasonSuspiciousActivity Reason = "suspicious_activity"
	ReasonTokenReused        Reason = "token_reused"
	ReasonTokenExpired       Reason = "token_expired"
	ReasonInternalError      Reason = "internal_error"
)

// Err returns the domain error a reason maps to, or nil for ReasonOK.
func (r Reason) Err() *DomainError {
	switch r {
	case ReasonOK:
		return nil
	case ReasonInvalidFormat:
		return ErrTokenMalformed
	case ReasonIPBlocked:
		return ErrBlocked
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonInvalidToken:
		return ErrTokenInvalid
	case ReasonSuspiciousOrigin, ReasonSuspiciousActivity:
		return ErrSuspiciousActivity
	case ReasonTokenReused:
		return ErrTokenAlreadyUsed
	case ReasonTokenExpired:
		return ErrTokenExpired
	default:
		return ErrInternalServer
	}
}
