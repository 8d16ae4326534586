package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/security"
)

// Query defaults for the security endpoints.
const (
	DefaultSummaryHours = 24
	MaxSummaryHours     = 24 * 30
	DefaultEventsLimit  = 100
	MaxEventsLimit      = 1000
	defaultEventsSince  = time.Hour
)

// handleSecuritySummary handles GET /admin/v1/security/summary?hours=N.
func (h *Handler) handleSecuritySummary(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		h.unavailable(w, r, "event log")
		return
	}
	hours := DefaultSummaryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxSummaryHours {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("hours must be between 1 and "+strconv.Itoa(MaxSummaryHours)))
			return
		}
		hours = n
	}
	h.writeJSON(w, r, http.StatusOK, h.deps.Events.Summarize(hours))
}

// handleSecurityEvents handles GET /admin/v1/security/events.
//
// Query parameters: since (RFC 3339 time or a duration such as 30m), type
// (repeatable or comma separated), identifier, min_severity, limit.
func (h *Handler) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		h.unavailable(w, r, "event log")
		return
	}
	q := r.URL.Query()

	since, err := parseSince(q.Get("since"), time.Now())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	f := security.Filter{
		Identifier: strings.TrimSpace(q.Get("identifier")),
		Limit:      DefaultEventsLimit,
	}
	for _, raw := range q["type"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, domain.EventType(t))
			}
		}
	}
	if v := q.Get("min_severity"); v != "" {
		sev, err := domain.ParseSeverity(v)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		f.MinSeverity = sev
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxEventsLimit {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("limit must be between 1 and "+strconv.Itoa(MaxEventsLimit)))
			return
		}
		f.Limit = n
	}

	events := h.deps.Events.Query(since, f)
	if events == nil {
		events = []domain.SecurityEvent{}
	}
	h.writeJSON(w, r, http.StatusOK, EventsResponse{Events: events, Count: len(events)})
}

func parseSince(v string, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return now.Add(-defaultEventsSince), nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.ErrInvalidArgument.WithDetails("since must be an RFC 3339 time or a duration")
	}
	return t, nil
}

// handleListBlocks handles GET /admin/v1/security/blocklist.
func (h *Handler) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blocker == nil {
		h.unavailable(w, r, "block list")
		return
	}
	entries, err := h.deps.Blocker.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.BlockEntry{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleBlock handles POST /admin/v1/security/blocklist/{identifier}.
func (h *Handler) handleBlock(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blocker == nil {
		h.unavailable(w, r, "block list")
		return
	}
	var req BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	var ttl time.Duration
	if v := strings.TrimSpace(req.TTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("ttl: "+err.Error()))
			return
		}
		ttl = d
	}

	entry, err := h.deps.Blocker.Block(r.Context(), service.BlockRequest{
		Identifier: r.PathValue("identifier"),
		Reason:     req.Reason,
		TTL:        ttl,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, entry)
}

// handleUnblock handles DELETE /admin/v1/security/blocklist/{identifier}.
func (h *Handler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blocker == nil {
		h.unavailable(w, r, "block list")
		return
	}
	id := r.PathValue("identifier")
	removed, err := h.deps.Blocker.Unblock(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, UnblockResponse{Identifier: id, Removed: removed})
}
