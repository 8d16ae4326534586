// Package handler provides the HTTP request handlers for rsvpguard.
//
// Public routes serve the invitation page (token validation and RSVP
// completion); /admin/v1 routes serve the couple's dashboard and the CLI.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/internal/core/domain"
	"github.com/yndnr/rsvpguard/internal/core/service"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
)

// Deps are the services the handlers call. Validator is required; a nil
// admin dependency turns its routes into 503 responses.
type Deps struct {
	Validator *service.Validator
	Issuer    *service.Issuer
	Blocker   *service.Blocker
	Store     service.TokenStore
	Events    *security.EventLog
	Backups   *backup.Service

	// Ready reports whether the server can take traffic. Nil means always.
	Ready func(ctx context.Context) error

	// TrustedProxies are the peers whose forwarding headers are believed.
	TrustedProxies TrustedProxies

	Logger *slog.Logger
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	deps      Deps
	logger    *slog.Logger
	mux       *http.ServeMux
	startedAt time.Time
}

// New creates a Handler over deps.
func New(deps Deps) *Handler {
	lg := deps.Logger
	if lg == nil {
		lg = slog.Default()
	}
	h := &Handler{
		deps:      deps,
		logger:    lg,
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Route returns the pattern r would be dispatched to, or "" when no route
// matches.
func (h *Handler) Route(r *http.Request) string {
	_, pattern := h.mux.Handler(r)
	return pattern
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Token endpoints
	h.mux.HandleFunc("POST /v1/tokens/validate", h.handleValidateToken)
	h.mux.HandleFunc("POST /v1/tokens/complete", h.handleCompleteToken)

	// Admin endpoints
	h.mux.HandleFunc("GET /admin/v1/status", h.handleAdminStatus)
	h.mux.HandleFunc("POST /admin/v1/tokens/bulk", h.handleBulkIssue)
	h.mux.HandleFunc("GET /admin/v1/campaign", h.handleGetCampaign)
	h.mux.HandleFunc("PUT /admin/v1/campaign", h.handlePutCampaign)

	h.mux.HandleFunc("GET /admin/v1/security/summary", h.handleSecuritySummary)
	h.mux.HandleFunc("GET /admin/v1/security/events", h.handleSecurityEvents)
	h.mux.HandleFunc("GET /admin/v1/security/blocklist", h.handleListBlocks)
	h.mux.HandleFunc("POST /admin/v1/security/blocklist/{identifier}", h.handleBlock)
	h.mux.HandleFunc("DELETE /admin/v1/security/blocklist/{identifier}", h.handleUnblock)

	h.mux.HandleFunc("POST /admin/v1/backups", h.handleCreateBackup)
	h.mux.HandleFunc("GET /admin/v1/backups", h.handleListBackups)
	h.mux.HandleFunc("POST /admin/v1/backups/cleanup", h.handleCleanupBackups)
	h.mux.HandleFunc("GET /admin/v1/backups/{id}", h.handleGetBackup)
	h.mux.HandleFunc("GET /admin/v1/backups/{id}/plan", h.handleRecoveryPlan)
	h.mux.HandleFunc("POST /admin/v1/backups/{id}/validate", h.handleValidateBackup)
	h.mux.HandleFunc("POST /admin/v1/backups/{id}/restore", h.handleRestore)
	h.mux.HandleFunc("GET /admin/v1/restores", h.handleListRestores)
	h.mux.HandleFunc("GET /admin/v1/restores/{job}", h.handleGetRestore)
	h.mux.HandleFunc("DELETE /admin/v1/restores/{job}", h.handleCancelRestore)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode error response", "error", err)
	}
}

// getRequestID returns the id set by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := domain.HTTPStatus(de)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "code", de.Code, "error", err)
		}
		h.writeError(w, r, status, de.Code, de.Message, detailsOf(de))
		return
	}

	h.logger.ErrorContext(r.Context(), "internal error", "path", r.URL.Path, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

func detailsOf(de *domain.DomainError) any {
	if de.Details == "" {
		return nil
	}
	return de.Details
}

func (h *Handler) unavailable(w http.ResponseWriter, r *http.Request, what string) {
	h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrServiceUnavailable.Code,
		domain.ErrServiceUnavailable.Message, what+" is not configured")
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.ErrBadRequest.WithDetails("invalid JSON body: " + err.Error())
	}
	return nil
}

// TrustedProxies is a set of reverse proxy networks.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses IPs and CIDRs. A bare IP is a single-host
// network.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			out = append(out, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("trusted proxy %q: invalid IP", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out, nil
}

// Contains reports whether addr parses as an IP inside one of the networks.
func (p TrustedProxies) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the identifier rate limiting and blocking key on.
//
// Forwarding headers are only read when the peer is a trusted proxy.
// X-Forwarded-For is walked from the right and the first hop that is not a
// trusted proxy wins, so hops the client prepends are never reached.
// X-Real-IP is used when no X-Forwarded-For is present.
func ClientIP(r *http.Request, trusted TrustedProxies) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !trusted.Contains(peer) {
		return peer
	}
	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				// Garbage in the chain; nothing left of it can be trusted.
				return peer
			}
			if !trusted.Contains(hop) {
				return hop
			}
			peer = hop
		}
		return peer
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func (h *Handler) clientIP(r *http.Request) string {
	return ClientIP(r, h.deps.TrustedProxies)
}
