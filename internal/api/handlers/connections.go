package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/recastlabs/recast/internal/api/dto"
	"github.com/recastlabs/recast/internal/api/middleware"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
)

type ConnectionHandler struct {
	conns *connections.Manager
}

func NewConnectionHandler(conns *connections.Manager) *ConnectionHandler {
	return &ConnectionHandler{conns: conns}
}

type ConnectionResponse struct {
	Platform      string `json:"platform"`
	Connected     bool   `json:"connected"`
	ProviderEmail string `json:"provider_email,omitempty"`
	ProviderName  string `json:"provider_name,omitempty"`
	ConnectedAt   string `json:"connected_at,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

func parsePlatform(raw string) (models.Platform, bool) {
	switch models.Platform(raw) {
	case models.PlatformZoom:
		return models.PlatformZoom, true
	case models.PlatformLinkedIn:
		return models.PlatformLinkedIn, true
	}
	return "", false
}

// Status handles GET /api/v1/connections/{platform}
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	platform, ok := parsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown platform")
		return
	}

	conn, err := h.conns.FindConnection(r.Context(), userID, platform)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up connection")
		return
	}
	if conn == nil {
		writeJSON(w, http.StatusOK, ConnectionResponse{
			Platform:  string(platform),
			Connected: false,
		})
		return
	}

	writeJSON(w, http.StatusOK, ConnectionResponse{
		Platform:      string(platform),
		Connected:     true,
		ProviderEmail: conn.ProviderEmail,
		ProviderName:  conn.ProviderName,
		ConnectedAt:   conn.ConnectedAt.Format(time.RFC3339),
		ExpiresAt:     conn.ExpiresAt.Format(time.RFC3339),
	})
}

// Disconnect handles DELETE /api/v1/connections/{platform}. Removing an
// already-removed connection succeeds.
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	platform, ok := parsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown platform")
		return
	}

	if err := h.conns.Remove(r.Context(), userID, platform); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Disconnected"})
}
