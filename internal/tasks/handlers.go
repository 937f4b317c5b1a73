package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/recastlabs/recast/internal/deletion"
	"github.com/recastlabs/recast/internal/ingest"
	"github.com/recastlabs/recast/internal/publish"
)

type Handler struct {
	logger      *slog.Logger
	client      *asynq.Client
	ingestSvc   *ingest.Service
	publishSvc  *publish.Service
	deletionSvc *deletion.Service
	fetchClient *http.Client
}

func NewHandler(logger *slog.Logger, client *asynq.Client, ingestSvc *ingest.Service, publishSvc *publish.Service, deletionSvc *deletion.Service) *Handler {
	return &Handler{
		logger:      logger,
		client:      client,
		ingestSvc:   ingestSvc,
		publishSvc:  publishSvc,
		deletionSvc: deletionSvc,
		fetchClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeTranscriptProcess, h.HandleTranscriptProcess)
	mux.HandleFunc(TypePublishPost, h.HandlePublishPost)
	mux.HandleFunc(TypeDeletionProcess, h.HandleDeletionProcess)
	mux.HandleFunc(TypeDeletionSweep, h.HandleDeletionSweep)
	mux.HandleFunc(TypePublishSweep, h.HandlePublishSweep)
}

func (h *Handler) HandleTranscriptProcess(ctx context.Context, t *asynq.Task) error {
	var payload TranscriptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	text := payload.Transcript
	if text == "" && payload.DownloadURL != "" {
		fetched, err := h.fetchTranscript(ctx, payload.DownloadURL, payload.DownloadToken)
		if err != nil {
			return fmt.Errorf("fetching transcript: %w", err)
		}
		text = fetched
	}

	result, err := h.ingestSvc.Process(ctx, ingest.Transcript{
		SourceSessionID: payload.SourceSessionID,
		SessionSequence: payload.SessionSequence,
		Topic:           payload.Topic,
		Text:            text,
		HostEmail:       payload.HostEmail,
		Participants:    payload.Participants,
		Summary:         payload.Summary,
		OwnerID:         payload.OwnerID,
	})
	if err != nil {
		h.logger.Error("transcript processing failed",
			"session_id", payload.SourceSessionID,
			"error", err,
		)
		return err
	}

	h.logger.Info("transcript job done",
		"session_id", payload.SourceSessionID,
		"result", result.Kind,
		"hooks", result.Hooks,
		"posts", result.Posts,
	)
	return nil
}

func (h *Handler) HandlePublishPost(ctx context.Context, t *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	outcome, err := h.publishSvc.Process(ctx, payload.PostID)
	if err != nil {
		h.logger.Error("publish failed", "post_id", payload.PostID, "error", err)
		return err
	}

	h.logger.Info("publish job done", "post_id", payload.PostID, "outcome", outcome)
	return nil
}

func (h *Handler) HandleDeletionProcess(ctx context.Context, t *asynq.Task) error {
	var payload DeletionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	outcome, err := h.deletionSvc.Process(ctx, payload.RequestID)
	if err != nil {
		return err
	}

	h.logger.Info("deletion job done",
		"request_id", payload.RequestID,
		"found", outcome.Found,
		"performed", outcome.Performed,
	)
	return nil
}

// HandleDeletionSweep feeds due PENDING requests into the deletions lane.
func (h *Handler) HandleDeletionSweep(ctx context.Context, t *asynq.Task) error {
	due, err := h.deletionSvc.PendingDue(ctx)
	if err != nil {
		return err
	}

	for _, req := range due {
		task, err := NewDeletionTask(req.ID)
		if err != nil {
			return err
		}
		if _, err := h.client.EnqueueContext(ctx, task); err != nil {
			return fmt.Errorf("enqueueing deletion %s: %w", req.ID, err)
		}
	}

	if len(due) > 0 {
		h.logger.Info("deletion sweep enqueued requests", "count", len(due))
	}
	return nil
}

// HandlePublishSweep enqueues SCHEDULED posts whose time has arrived.
func (h *Handler) HandlePublishSweep(ctx context.Context, t *asynq.Task) error {
	due, err := h.publishSvc.DueScheduled(ctx)
	if err != nil {
		return err
	}

	for _, post := range due {
		task, err := NewPublishTask(post.ID, 0)
		if err != nil {
			return err
		}
		if _, err := h.client.EnqueueContext(ctx, task); err != nil {
			return fmt.Errorf("enqueueing publish %s: %w", post.ID, err)
		}
	}

	if len(due) > 0 {
		h.logger.Info("publish sweep enqueued posts", "count", len(due))
	}
	return nil
}

func (h *Handler) fetchTranscript(ctx context.Context, url, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.fetchClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PublishEnqueuer adapts the queue client to the publish service's
// self-requeue hook.
type PublishEnqueuer struct {
	Client *asynq.Client
}

func (e *PublishEnqueuer) EnqueuePublish(ctx context.Context, postID uuid.UUID, delay time.Duration) error {
	task, err := NewPublishTask(postID, delay)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task)
	return err
}
