package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
)

// handleValidateToken handles POST /v1/tokens/validate.
//
// A valid token answers 200. Every denial answers with the status of its
// error code and the same ValidateTokenResponse in the envelope details.
func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	id := h.clientIP(r)
	res := h.deps.Validator.Validate(logger.WithIdentifier(r.Context(), id), service.ValidateRequest{
		Token:      req.Token,
		Identifier: id,
		UserAgent:  r.UserAgent(),
		Origin:     r.Header.Get("Origin"),
	})

	body := ValidateTokenResponse{
		Valid:  res.Valid,
		Reason: res.Reason,
		Flags:  res.Flags,
		Guest:  newGuestView(res.Guest),
	}
	if res.Valid {
		h.writeJSON(w, r, http.StatusOK, body)
		return
	}

	if res.RetryAfter > 0 {
		secs := int(math.Ceil(res.RetryAfter.Seconds()))
		body.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	de := res.Error
	if de == nil {
		de = domain.ErrInternalServer
	}
	h.writeError(w, r, domain.HTTPStatus(de), de.Code, de.Message, body)
}

// handleCompleteToken handles POST /v1/tokens/complete. It is guarded like
// validation: blocked and rate limited clients are refused before the
// store is consulted.
func (h *Handler) handleCompleteToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	id := h.clientIP(r)
	c, err := h.deps.Validator.RecordCompletion(logger.WithIdentifier(r.Context(), id), service.ValidateRequest{
		Token:      req.Token,
		Identifier: id,
		UserAgent:  r.UserAgent(),
		Origin:     r.Header.Get("Origin"),
	})
	if err != nil {
		if c.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(c.RetryAfter.Seconds()))))
		}
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, CompleteTokenResponse{
		Guest:            newGuestView(c.Guest),
		AlreadyCompleted: c.AlreadyCompleted,
	})
}
