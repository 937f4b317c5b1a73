package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/recastlabs/recast/internal/api/dto"
	"github.com/recastlabs/recast/internal/api/middleware"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/deletion"
)

// AccountHandler exposes the deletion lifecycle: request, cancel, status.
type AccountHandler struct {
	deletions *deletion.Service
	conns     *connections.Manager
	graceDays int
}

func NewAccountHandler(deletions *deletion.Service, conns *connections.Manager, graceDays int) *AccountHandler {
	return &AccountHandler{deletions: deletions, conns: conns, graceDays: graceDays}
}

type DeletionResponse struct {
	ID           string                `json:"id"`
	Status       string                `json:"status"`
	ScheduledFor time.Time             `json:"scheduledFor"`
	Audit        *models.DeletionAudit `json:"audit,omitempty"`
	CreatedAt    string                `json:"created_at"`
}

func deletionToResponse(req *models.DeletionRequest) DeletionResponse {
	resp := DeletionResponse{
		ID:           req.ID.String(),
		Status:       string(req.Status),
		ScheduledFor: req.ScheduledFor,
		CreatedAt:    req.CreatedAt.Format(time.RFC3339),
	}
	if req.Status == models.DeletionStatusCompleted || req.Status == models.DeletionStatusFailed {
		resp.Audit = &req.Audit
	}
	return resp
}

// RequestDeletion handles POST /api/v1/account/deletion
func (h *AccountHandler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	// Capture the Zoom identity while the connection still exists; the
	// compliance notification needs it after the rows are gone.
	zoomUserID := ""
	if conn, err := h.conns.FindConnection(r.Context(), userID, models.PlatformZoom); err == nil && conn != nil {
		zoomUserID = conn.ProviderUserID
	}

	req, err := h.deletions.Schedule(r.Context(), userID, zoomUserID, h.graceDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to schedule deletion")
		return
	}

	writeJSON(w, http.StatusAccepted, deletionToResponse(req))
}

// CancelDeletion handles DELETE /api/v1/account/deletion
func (h *AccountHandler) CancelDeletion(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	req, err := h.deletions.GetByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up deletion request")
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, "No deletion request found")
		return
	}

	if err := h.deletions.Cancel(r.Context(), req.ID); err != nil {
		switch {
		case errors.Is(err, deletion.ErrNotFound):
			writeError(w, http.StatusNotFound, "No deletion request found")
		case errors.Is(err, deletion.ErrNotCancelable):
			writeError(w, http.StatusConflict, "Deletion is already being processed")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to cancel deletion")
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Deletion request canceled"})
}

// DeletionStatus handles GET /api/v1/account/deletion
func (h *AccountHandler) DeletionStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	req, err := h.deletions.GetByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up deletion request")
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, "No deletion request found")
		return
	}

	writeJSON(w, http.StatusOK, deletionToResponse(req))
}
