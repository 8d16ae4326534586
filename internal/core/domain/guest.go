package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Guest constraints.
const (
	MaxGuestNameLength = 200
	MaxContactLength   = 254
	MaxTagsPerGuest    = 16
	MaxTagLength       = 32

	// GuestIDPrefix is the prefix for generated guest ids.
	GuestIDPrefix = "gst-"

	// DefaultTokenTTL is how long an invitation stays valid after issue.
	DefaultTokenTTL = 60 * 24 * time.Hour
)

// ContactChannel is how the couple reaches a guest.
type ContactChannel string

const (
	ChannelEmail    ContactChannel = "email"
	ChannelPhone    ContactChannel = "phone"
	ChannelWhatsApp ContactChannel = "whatsapp"
	ChannelNone     ContactChannel = ""
)

// Valid reports whether c is a known channel.
func (c ContactChannel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPhone, ChannelWhatsApp, ChannelNone:
		return true
	}
	return false
}

// Priority orders guests for reminders.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// GuestRecord is the identity an invitation token grants access to.
//
// Records are created at import time, flipped to used on the first RSVP
// completion, and never deleted.
type GuestRecord struct {
	// Token is the invitation token; it is the store key.
	Token string `json:"token"`

	// GuestID identifies the guest across primary and backup tokens.
	GuestID string `json:"guest_id"`

	Name           string         `json:"name"`
	Channel        ContactChannel `json:"channel,omitempty"`
	Contact        string         `json:"contact,omitempty"`
	PlusOneAllowed bool           `json:"plus_one_allowed"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Used        bool       `json:"used"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ReminderCount int      `json:"reminder_count"`
	Tags          []string `json:"tags,omitempty"`
	Priority      Priority `json:"priority,omitempty"`

	// BackupOf holds the primary token when this record is a backup token.
	BackupOf string `json:"backup_of,omitempty"`
}

// NewGuestID returns a fresh guest id.
func NewGuestID() string {
	return GuestIDPrefix + strings.ToLower(ulid.Make().String())
}

// IsExpired reports whether the token is past its expiry at now.
// A zero ExpiresAt never expires.
func (g *GuestRecord) IsExpired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}

// Admissible reports whether the record may still be used to access the RSVP.
func (g *GuestRecord) Admissible(now time.Time) bool {
	return !g.Used && !g.IsExpired(now)
}

// MarkUsed flips the used flag. It reports false if the record was already used.
func (g *GuestRecord) MarkUsed(at time.Time) bool {
	if g.Used {
		return false
	}
	g.Used = true
	t := at
	g.CompletedAt = &t
	return true
}

// Clone returns a deep copy.
func (g *GuestRecord) Clone() *GuestRecord {
	if g == nil {
		return nil
	}
	c := *g
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		c.CompletedAt = &t
	}
	if g.Tags != nil {
		c.Tags = append([]string(nil), g.Tags...)
	}
	return &c
}

// Validate checks field constraints.
func (g *GuestRecord) Validate() error {
	switch {
	case g.Token == "":
		return ErrGuestValidation.WithDetails("token is required")
	case g.GuestID == "":
		return ErrGuestValidation.WithDetails("guest_id is required")
	case strings.TrimSpace(g.Name) == "":
		return ErrGuestValidation.WithDetails("name is required")
	case len(g.Name) > MaxGuestNameLength:
		return ErrGuestValidation.WithDetails("name too long")
	case !g.Channel.Valid():
		return ErrGuestValidation.WithDetails("unknown contact channel: " + string(g.Channel))
	case len(g.Contact) > MaxContactLength:
		return ErrGuestValidation.WithDetails("contact too long")
	case len(g.Tags) > MaxTagsPerGuest:
		return ErrGuestValidation.WithDetails("too many tags")
	case !g.ExpiresAt.IsZero() && g.ExpiresAt.Before(g.IssuedAt):
		return ErrGuestValidation.WithDetails("expires_at before issued_at")
	}
	for _, tag := range g.Tags {
		if tag == "" || len(tag) > MaxTagLength {
			return ErrGuestValidation.WithDetails("invalid tag: " + tag)
		}
	}
	return nil
}

// Campaign is the invitation template and defaults guest records depend on.
type Campaign struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	EventDate time.Time         `json:"event_date"`
	TokenTTL  time.Duration     `json:"token_ttl"`
	Templates map[string]string `json:"templates,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	out := *c
	if c.Templates != nil {
		out.Templates = make(map[string]string, len(c.Templates))
		for k, v := range c.Templates {
			out.Templates[k] = v
		}
	}
	return &out
}

// EffectiveTTL returns the campaign token TTL or DefaultTokenTTL.
func (c *Campaign) EffectiveTTL() time.Duration {
	if c == nil || c.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return c.TokenTTL
}

// BlockEntry is one identifier on the block list.
type BlockEntry struct {
	Identifier string    `json:"identifier"`
	Reason     string    `json:"reason"`
	BlockedAt  time.Time `json:"blocked_at"`

	// ExpiresAt is zero for permanent blocks.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Automatic bool      `json:"automatic"`
}

// Active reports whether the block is in force at now.
func (b BlockEntry) Active(now time.Time) bool {
	return b.ExpiresAt.IsZero() || now.Before(b.ExpiresAt)
}
