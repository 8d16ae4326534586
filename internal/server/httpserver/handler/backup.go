package handler

import (
	"net/http"

	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/internal/core/domain"
)

// handleCreateBackup handles POST /admin/v1/backups.
func (h *Handler) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	var req CreateBackupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	types, err := backup.ParseDataTypes(req.DataTypes)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	b, err := h.deps.Backups.CreateBackup(r.Context(), backup.Options{
		Encrypt:   req.Encrypt,
		Compress:  req.Compress,
		DataTypes: types,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, b.Metadata)
}

// handleListBackups handles GET /admin/v1/backups.
func (h *Handler) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	metas, err := h.deps.Backups.List()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if metas == nil {
		metas = []*backup.Metadata{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"backups": metas, "count": len(metas)})
}

// handleGetBackup handles GET /admin/v1/backups/{id}.
func (h *Handler) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	meta, err := h.deps.Backups.Metadata(r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, meta)
}

// handleRecoveryPlan handles GET /admin/v1/backups/{id}/plan.
func (h *Handler) handleRecoveryPlan(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	plan, err := h.deps.Backups.GenerateRecoveryPlan(r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, plan)
}

// handleValidateBackup handles POST /admin/v1/backups/{id}/validate.
func (h *Handler) handleValidateBackup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	v, err := h.deps.Backups.ValidateBackup(r.PathValue("id"), nil)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, v)
}

// handleRestore handles POST /admin/v1/backups/{id}/restore.
//
// The restore runs in the background and the response is 202 with the
// operation status, unless wait is set.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	id := r.PathValue("id")
	var req RestoreRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	var types []backup.DataType
	if len(req.SelectiveTypes) > 0 {
		var err error
		if types, err = backup.ParseDataTypes(req.SelectiveTypes); err != nil {
			h.handleServiceError(w, r, err)
			return
		}
	}
	// Unknown ids are rejected here instead of surfacing as a failed job.
	if _, err := h.deps.Backups.Metadata(id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	opts := backup.RestoreOptions{
		ValidateChecksum: true,
		SelectiveTypes:   types,
		DryRun:           req.DryRun,
		Overwrite:        req.Overwrite,
	}
	if req.ValidateChecksum != nil {
		opts.ValidateChecksum = *req.ValidateChecksum
	}

	op := h.deps.Backups.StartRestore(id, opts)
	h.logger.InfoContext(r.Context(), "restore started", "backup_id", id, "operation_id", op.ID(), "dry_run", req.DryRun)
	if !req.Wait {
		h.writeJSON(w, r, http.StatusAccepted, op.Status())
		return
	}
	st, err := op.Wait(r.Context())
	if err != nil {
		// Client went away; the job keeps running and can be polled.
		h.writeJSON(w, r, http.StatusAccepted, st)
		return
	}
	h.writeJSON(w, r, http.StatusOK, st)
}

// handleListRestores handles GET /admin/v1/restores.
func (h *Handler) handleListRestores(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	ops := h.deps.Backups.Operations()
	out := make([]backup.OperationStatus, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Status())
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"operations": out, "count": len(out)})
}

// handleGetRestore handles GET /admin/v1/restores/{job}.
func (h *Handler) handleGetRestore(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	op, err := h.deps.Backups.Operation(r.PathValue("job"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, op.Status())
}

// handleCancelRestore handles DELETE /admin/v1/restores/{job}.
func (h *Handler) handleCancelRestore(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	op, err := h.deps.Backups.Operation(r.PathValue("job"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if op.Status().Status.Terminal() {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("operation already finished"))
		return
	}
	op.Cancel()
	h.writeJSON(w, r, http.StatusAccepted, op.Status())
}

// handleCleanupBackups handles POST /admin/v1/backups/cleanup.
func (h *Handler) handleCleanupBackups(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		h.unavailable(w, r, "backup service")
		return
	}
	var req CleanupBackupsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	res, err := h.deps.Backups.Cleanup(req.RetentionDays)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}
