// Package domain defines the core domain models for rsvpguard.
//
// Domain models are pure value objects without IO dependencies. This
// package contains:
//
//   - GuestRecord and Campaign: what an invitation token grants access to
//   - SecurityEvent, EventType and Severity: the audit vocabulary
//   - Reason: terminal outcomes of a token validation
//   - Errors: coded domain errors
package domain
