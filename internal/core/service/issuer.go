package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
	"github.com/yndnr/rsvpguard/pkg/token"
)

// GuestInput is one row of a guest list import.
type GuestInput struct {
	GuestID        string                `json:"guest_id,omitempty" yaml:"guest_id,omitempty"`
	Name           string                `json:"name" yaml:"name"`
	Channel        domain.ContactChannel `json:"channel,omitempty" yaml:"channel,omitempty"`
	Contact        string                `json:"contact,omitempty" yaml:"contact,omitempty"`
	PlusOneAllowed bool                  `json:"plus_one_allowed,omitempty" yaml:"plus_one_allowed,omitempty"`
	Tags           []string              `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority       domain.Priority       `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// IssueRequest asks for tokens for a list of guests.
type IssueRequest struct {
	Guests     []GuestInput
	WithBackup bool
}

// IssuedGuest is one guest's issued tokens.
type IssuedGuest struct {
	GuestID     string    `json:"guest_id"`
	Name        string    `json:"name"`
	Token       string    `json:"token"`
	BackupToken string    `json:"backup_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueFailure attributes a failure to one guest.
type IssueFailure struct {
	GuestID string `json:"guest_id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// IssueResult is the outcome of IssueCampaign.
type IssueResult struct {
	Issued           []IssuedGuest  `json:"issued"`
	Failures         []IssueFailure `json:"failures,omitempty"`
	CollisionRetries int            `json:"collision_retries"`
}

// Issuer generates and stores tokens for a campaign's guests.
type Issuer struct {
	codec     *token.Codec
	store     TokenStore
	campaigns CampaignStore
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metric.Registry
}

// NewIssuer creates an Issuer. logger and metrics may be nil.
func NewIssuer(codec *token.Codec, store TokenStore, campaigns CampaignStore, logger *slog.Logger, metrics *metric.Registry) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		codec:     codec,
		store:     store,
		campaigns: campaigns,
		now:       time.Now,
		logger:    logger,
		metrics:   metrics,
	}
}

// Campaign returns the stored campaign or ErrCampaignNotFound.
func (i *Issuer) Campaign(ctx context.Context) (*domain.Campaign, error) {
	return i.campaigns.GetCampaign(ctx)
}

// SetCampaign validates and stores the campaign.
func (i *Issuer) SetCampaign(ctx context.Context, c *domain.Campaign) error {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return domain.ErrMissingArgument.WithDetails("campaign name is required")
	}
	if c.TokenTTL < 0 {
		return domain.ErrInvalidArgument.WithDetails("token_ttl must not be negative")
	}
	if c.ID == "" {
		c.ID = "cmp-" + strings.ToLower(ulid.Make().String())
	}
	c.UpdatedAt = i.now()
	return i.campaigns.PutCampaign(ctx, c)
}

// IssueCampaign issues one token per guest (two with WithBackup) expiring
// after the campaign token TTL. Guests that fail validation or exhaust
// collision retries are reported in Failures; the rest are stored in a
// single batch.
func (i *Issuer) IssueCampaign(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	campaign, err := i.campaigns.GetCampaign(ctx)
	if err != nil {
		return nil, err
	}
	now := i.now()
	expires := now.Add(campaign.EffectiveTTL())

	res := &IssueResult{}
	inputs := make(map[string]GuestInput, len(req.Guests))
	ids := make([]string, 0, len(req.Guests))
	for _, in := range req.Guests {
		if in.GuestID == "" {
			in.GuestID = domain.NewGuestID()
		}
		probe := i.record(in, "PROBE", now, expires)
		if err := probe.Validate(); err != nil {
			res.Failures = append(res.Failures, IssueFailure{GuestID: in.GuestID, Name: in.Name, Message: errMessage(err)})
			continue
		}
		if _, dup := inputs[in.GuestID]; !dup {
			inputs[in.GuestID] = in
		}
		ids = append(ids, in.GuestID)
	}

	var lookupErr error
	bulk := i.codec.GenerateBulk(ids, token.BulkOptions{
		WithBackup: req.WithBackup,
		Existing: func(tok string) bool {
			ok, err := i.store.Exists(ctx, tok)
			if err != nil {
				lookupErr = err
				return true
			}
			return ok
		},
	})
	if lookupErr != nil && len(bulk.Tokens) == 0 {
		return nil, domain.ErrStorageError.WithCause(lookupErr)
	}
	res.CollisionRetries = bulk.CollisionRetries
	for _, ge := range bulk.Errors {
		res.Failures = append(res.Failures, IssueFailure{GuestID: ge.GuestID, Name: inputs[ge.GuestID].Name, Message: ge.Err.Error()})
	}

	records := make([]*domain.GuestRecord, 0, 2*len(bulk.Tokens))
	for _, t := range bulk.Tokens {
		in := inputs[t.GuestID]
		records = append(records, i.record(in, t.Token, now, expires))
		if t.BackupToken != "" {
			backup := i.record(in, t.BackupToken, now, expires)
			backup.BackupOf = t.Token
			records = append(records, backup)
		}
		res.Issued = append(res.Issued, IssuedGuest{
			GuestID:     t.GuestID,
			Name:        in.Name,
			Token:       t.Token,
			BackupToken: t.BackupToken,
			ExpiresAt:   expires,
		})
	}

	if len(records) > 0 {
		if _, err := i.store.BulkPut(ctx, records, PutInsert); err != nil {
			var de *domain.DomainError
			if errors.As(err, &de) {
				return nil, err
			}
			return nil, domain.ErrStorageError.WithCause(err)
		}
	}
	i.metrics.AddTokensIssued(len(records))
	i.logger.Info("tokens issued",
		"campaign_id", campaign.ID,
		"guests", len(res.Issued),
		"tokens", len(records),
		"failures", len(res.Failures),
		"collision_retries", res.CollisionRetries)
	return res, nil
}

func (i *Issuer) record(in GuestInput, tok string, now, expires time.Time) *domain.GuestRecord {
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	return &domain.GuestRecord{
		Token:          tok,
		GuestID:        in.GuestID,
		Name:           strings.TrimSpace(in.Name),
		Channel:        in.Channel,
		Contact:        in.Contact,
		PlusOneAllowed: in.PlusOneAllowed,
		IssuedAt:       now,
		ExpiresAt:      expires,
		Tags:           in.Tags,
		Priority:       priority,
	}
}

func errMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && de.Details != "" {
		return de.Details
	}
	return err.Error()
}
