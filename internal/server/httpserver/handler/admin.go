package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/infra/buildinfo"
)

// MaxBulkGuests bounds one bulk issue request.
const MaxBulkGuests = 5000

// handleAdminStatus handles GET /admin/v1/status.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := buildinfo.Get()
	resp := StatusResponse{
		Version:       info.Version,
		Commit:        info.Commit,
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(time.Since(h.startedAt) / time.Second),
	}

	if h.deps.Store != nil {
		n, err := h.deps.Store.Count(ctx)
		if err != nil {
			h.handleServiceError(w, r, domain.ErrStorageError.WithCause(err))
			return
		}
		resp.Guests = n
	}
	if h.deps.Events != nil {
		resp.Events = h.deps.Events.Len()
		resp.EventCapacity = h.deps.Events.Capacity()
		resp.EventsEvicted = h.deps.Events.Evicted()
	}
	if h.deps.Blocker != nil {
		entries, err := h.deps.Blocker.List(ctx)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		resp.BlockedCount = len(entries)
	}
	if h.deps.Backups != nil {
		resp.RecoveryJobs = len(h.deps.Backups.Operations())
	}
	if h.deps.Issuer != nil {
		c, err := h.deps.Issuer.Campaign(ctx)
		switch {
		case err == nil:
			resp.CampaignName = c.Name
			if !c.EventDate.IsZero() {
				resp.CampaignEventDay = c.EventDate.Format(time.DateOnly)
			}
		case !errors.Is(err, domain.ErrCampaignNotFound):
			h.handleServiceError(w, r, err)
			return
		}
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleBulkIssue handles POST /admin/v1/tokens/bulk.
func (h *Handler) handleBulkIssue(w http.ResponseWriter, r *http.Request) {
	if h.deps.Issuer == nil {
		h.unavailable(w, r, "issuer")
		return
	}
	var req BulkIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if len(req.Guests) == 0 {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("guests"))
		return
	}
	if len(req.Guests) > MaxBulkGuests {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("too many guests in one request"))
		return
	}

	res, err := h.deps.Issuer.IssueCampaign(r.Context(), service.IssueRequest{
		Guests:     req.Guests,
		WithBackup: req.WithBackup,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, res)
}

// handleGetCampaign handles GET /admin/v1/campaign.
func (h *Handler) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	if h.deps.Issuer == nil {
		h.unavailable(w, r, "issuer")
		return
	}
	c, err := h.deps.Issuer.Campaign(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newCampaignResponse(c))
}

// handlePutCampaign handles PUT /admin/v1/campaign.
func (h *Handler) handlePutCampaign(w http.ResponseWriter, r *http.Request) {
	if h.deps.Issuer == nil {
		h.unavailable(w, r, "issuer")
		return
	}
	var req CampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	c := &domain.Campaign{
		ID:        req.ID,
		Name:      req.Name,
		EventDate: req.EventDate,
		Templates: req.Templates,
	}
	if ttl := strings.TrimSpace(req.TokenTTL); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("token_ttl: "+err.Error()))
			return
		}
		c.TokenTTL = d
	}
	if err := h.deps.Issuer.SetCampaign(r.Context(), c); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newCampaignResponse(c))
}
