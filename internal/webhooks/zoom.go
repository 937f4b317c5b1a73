package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/deletion"
	"github.com/recastlabs/recast/internal/tasks"
)

const (
	signatureHeader = "x-zm-signature"
	timestampHeader = "x-zm-request-timestamp"

	// Zoom retries webhooks; anything older than this is replayed traffic.
	maxTimestampSkew = 5 * time.Minute

	maxBodySize = 4 << 20
)

const (
	eventURLValidation       = "endpoint.url_validation"
	eventAppDeauthorized     = "app_deauthorized"
	eventTranscriptCompleted = "recording.transcript_completed"
)

// TaskEnqueuer is the slice of asynq.Client the handler needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ZoomHandler verifies and dispatches Zoom webhook events.
type ZoomHandler struct {
	logger    *slog.Logger
	secret    string
	conns     *connections.Manager
	deletions *deletion.Service
	enqueuer  TaskEnqueuer
	graceDays int
	now       func() time.Time
}

func NewZoomHandler(logger *slog.Logger, secret string, conns *connections.Manager, deletions *deletion.Service, enqueuer TaskEnqueuer, graceDays int) *ZoomHandler {
	return &ZoomHandler{
		logger:    logger,
		secret:    secret,
		conns:     conns,
		deletions: deletions,
		enqueuer:  enqueuer,
		graceDays: graceDays,
		now:       time.Now,
	}
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type validationPayload struct {
	PlainToken string `json:"plainToken"`
}

type deauthPayload struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
}

type transcriptPayload struct {
	Object struct {
		SessionID    string   `json:"session_id"`
		Sequence     int      `json:"session_sequence"`
		Topic        string   `json:"topic"`
		HostEmail    string   `json:"host_email"`
		Participants []string `json:"participants"`
		Summary      string   `json:"summary"`
		DownloadURL  string   `json:"download_url"`
	} `json:"object"`
	DownloadToken string `json:"download_token"`
}

func (h *ZoomHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// The validation handshake arrives before Zoom starts signing, so it
	// skips the signature check.
	if env.Event == eventURLValidation {
		h.handleValidation(w, env.Payload)
		return
	}

	if !h.verifySignature(r, body) {
		h.logger.Warn("rejected webhook with bad signature", "event", env.Event)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	switch env.Event {
	case eventAppDeauthorized:
		h.handleDeauthorization(r.Context(), w, env.Payload)
	case eventTranscriptCompleted:
		h.handleTranscriptCompleted(r.Context(), w, env.Payload)
	default:
		h.logger.Debug("ignoring webhook event", "event", env.Event)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *ZoomHandler) verifySignature(r *http.Request, body []byte) bool {
	ts := r.Header.Get(timestampHeader)
	sig := r.Header.Get(signatureHeader)
	if ts == "" || sig == "" {
		return false
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	skew := h.now().Sub(time.Unix(unix, 0))
	if skew > maxTimestampSkew || skew < -maxTimestampSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sig))
}

func (h *ZoomHandler) handleValidation(w http.ResponseWriter, raw json.RawMessage) {
	var payload validationPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.PlainToken == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(payload.PlainToken))

	writeJSON(w, http.StatusOK, map[string]string{
		"plainToken":     payload.PlainToken,
		"encryptedToken": hex.EncodeToString(mac.Sum(nil)),
	})
}

// handleDeauthorization disconnects the Zoom account and schedules the
// compliance deletion for the owning user.
func (h *ZoomHandler) handleDeauthorization(ctx context.Context, w http.ResponseWriter, raw json.RawMessage) {
	var payload deauthPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.UserID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	conn, err := h.conns.FindByProviderUserID(ctx, models.PlatformZoom, payload.UserID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if conn == nil {
		// Nothing to correlate; Zoom still expects a 200 so it stops retrying.
		h.logger.Info("deauthorization for unknown zoom user", "zoom_user_id", payload.UserID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.conns.Remove(ctx, conn.UserID, models.PlatformZoom); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	req, err := h.deletions.Schedule(ctx, conn.UserID, payload.UserID, h.graceDays)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("scheduled deletion for deauthorized user",
		"user_id", conn.UserID,
		"zoom_user_id", payload.UserID,
		"scheduled_for", req.ScheduledFor,
	)
	w.WriteHeader(http.StatusOK)
}

func (h *ZoomHandler) handleTranscriptCompleted(ctx context.Context, w http.ResponseWriter, raw json.RawMessage) {
	var payload transcriptPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Object.SessionID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	task, err := tasks.NewTranscriptTask(tasks.TranscriptPayload{
		SourceSessionID: payload.Object.SessionID,
		SessionSequence: payload.Object.Sequence,
		Topic:           payload.Object.Topic,
		DownloadURL:     payload.Object.DownloadURL,
		DownloadToken:   payload.DownloadToken,
		HostEmail:       payload.Object.HostEmail,
		Participants:    payload.Object.Participants,
		Summary:         payload.Object.Summary,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if _, err := h.enqueuer.EnqueueContext(ctx, task); err != nil {
		h.logger.Error("failed to enqueue transcript task",
			"session_id", payload.Object.SessionID,
			"error", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
