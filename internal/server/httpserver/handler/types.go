package handler

import (
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ============================================================================
// Token API
// ============================================================================

// TokenRequest is the body of POST /v1/tokens/validate and /v1/tokens/complete.
type TokenRequest struct {
	Token string `json:"token"`
}

// GuestView is the part of a guest record a token holder may see.
type GuestView struct {
	GuestID        string     `json:"guest_id"`
	Name           string     `json:"name"`
	PlusOneAllowed bool       `json:"plus_one_allowed"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Used           bool       `json:"used"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func newGuestView(g *domain.GuestRecord) *GuestView {
	if g == nil {
		return nil
	}
	return &GuestView{
		GuestID:        g.GuestID,
		Name:           g.Name,
		PlusOneAllowed: g.PlusOneAllowed,
		ExpiresAt:      g.ExpiresAt,
		Used:           g.Used,
		CompletedAt:    g.CompletedAt,
	}
}

// ValidateTokenResponse is the payload of POST /v1/tokens/validate. It is
// the data of a success envelope and the details of an error envelope.
type ValidateTokenResponse struct {
	Valid             bool          `json:"valid"`
	Reason            domain.Reason `json:"reason"`
	Flags             service.Flags `json:"flags"`
	Guest             *GuestView    `json:"guest,omitempty"`
	RetryAfterSeconds int           `json:"retry_after_seconds,omitempty"`
}

// CompleteTokenResponse is the data of POST /v1/tokens/complete.
type CompleteTokenResponse struct {
	Guest            *GuestView `json:"guest"`
	AlreadyCompleted bool       `json:"already_completed"`
}

// ============================================================================
// Admin API
// ============================================================================

// BulkIssueRequest is the body of POST /admin/v1/tokens/bulk.
type BulkIssueRequest struct {
	Guests     []service.GuestInput `json:"guests"`
	WithBackup bool                 `json:"with_backup"`
}

// CampaignRequest is the body of PUT /admin/v1/campaign.
type CampaignRequest struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name"`
	EventDate time.Time         `json:"event_date"`
	TokenTTL  string            `json:"token_ttl,omitempty"`
	Templates map[string]string `json:"templates,omitempty"`
}

// CampaignResponse renders a campaign with a readable token TTL.
type CampaignResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	EventDate time.Time         `json:"event_date"`
	TokenTTL  string            `json:"token_ttl"`
	Templates map[string]string `json:"templates,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func newCampaignResponse(c *domain.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:        c.ID,
		Name:      c.Name,
		EventDate: c.EventDate,
		TokenTTL:  c.EffectiveTTL().String(),
		Templates: c.Templates,
		UpdatedAt: c.UpdatedAt,
	}
}

// StatusResponse is the data of GET /admin/v1/status.
type StatusResponse struct {
	Version          string    `json:"version"`
	Commit           string    `json:"commit"`
	StartedAt        time.Time `json:"started_at"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	Guests           int       `json:"guests"`
	Events           int       `json:"events"`
	EventCapacity    int       `json:"event_capacity"`
	EventsEvicted    int64     `json:"events_evicted"`
	BlockedCount     int       `json:"blocked_count"`
	RecoveryJobs     int       `json:"recovery_jobs"`
	CampaignName     string    `json:"campaign_name,omitempty"`
	CampaignEventDay string    `json:"campaign_event_day,omitempty"`
}

// BlockRequest is the body of POST /admin/v1/security/blocklist/{identifier}.
type BlockRequest struct {
	Reason string `json:"reason,omitempty"`
	TTL    string `json:"ttl,omitempty"`
}

// UnblockResponse is the data of DELETE /admin/v1/security/blocklist/{identifier}.
type UnblockResponse struct {
	Identifier string `json:"identifier"`
	Removed    bool   `json:"removed"`
}

// EventsResponse is the data of GET /admin/v1/security/events.
type EventsResponse struct {
	Events []domain.SecurityEvent `json:"events"`
	Count  int                    `json:"count"`
}

// CreateBackupRequest is the body of POST /admin/v1/backups.
type CreateBackupRequest struct {
	Encrypt   *bool    `json:"encrypt,omitempty"`
	Compress  *bool    `json:"compress,omitempty"`
	DataTypes []string `json:"data_types,omitempty"`
}

// RestoreRequest is the body of POST /admin/v1/backups/{id}/restore.
type RestoreRequest struct {
	ValidateChecksum *bool    `json:"validate_checksum,omitempty"`
	SelectiveTypes   []string `json:"selective_types,omitempty"`
	DryRun           bool     `json:"dry_run"`
	Overwrite        bool     `json:"overwrite"`
	// Wait blocks the request until the restore finishes.
	Wait bool `json:"wait"`
}

// CleanupBackupsRequest is the body of POST /admin/v1/backups/cleanup.
type CleanupBackupsRequest struct {
	RetentionDays int `json:"retention_days,omitempty"`
}
