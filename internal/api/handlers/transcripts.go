package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/recastlabs/recast/internal/api/dto"
	"github.com/recastlabs/recast/internal/api/middleware"
	"github.com/recastlabs/recast/internal/tasks"
)

// TaskEnqueuer is the slice of asynq.Client the handler needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TranscriptHandler is the legacy manual ingestion path. It feeds the same
// queue as the Zoom webhook, with the owner pinned to the caller.
type TranscriptHandler struct {
	enqueuer TaskEnqueuer
}

func NewTranscriptHandler(enqueuer TaskEnqueuer) *TranscriptHandler {
	return &TranscriptHandler{enqueuer: enqueuer}
}

type IngestTranscriptRequest struct {
	SourceSessionID string   `json:"source_session_id"`
	SessionSequence int      `json:"session_sequence"`
	Topic           string   `json:"topic"`
	Transcript      string   `json:"transcript"`
	Participants    []string `json:"participants,omitempty"`
	Summary         string   `json:"summary,omitempty"`
}

func (r IngestTranscriptRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Transcript == "" {
		errors["transcript"] = "Transcript text is required"
	}
	if r.SessionSequence < 0 {
		errors["session_sequence"] = "Must not be negative"
	}
	return errors
}

// Ingest handles POST /api/v1/transcripts
func (h *TranscriptHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req IngestTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	sessionID := req.SourceSessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%s", uuid.New())
	}

	task, err := tasks.NewTranscriptTask(tasks.TranscriptPayload{
		SourceSessionID: sessionID,
		SessionSequence: req.SessionSequence,
		Topic:           req.Topic,
		Transcript:      req.Transcript,
		HostEmail:       middleware.GetUserEmail(r.Context()),
		Participants:    req.Participants,
		Summary:         req.Summary,
		OwnerID:         userID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build task")
		return
	}

	if _, err := h.enqueuer.EnqueueContext(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to enqueue transcript")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"source_session_id": sessionID,
		"status":            "queued",
	})
}
