package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/recastlabs/recast/pkg/queue"
)

// Task type names
const (
	TypeTranscriptProcess = "transcript:process"
	TypePublishPost       = "publish:post"
	TypeDeletionProcess   = "deletion:process"
	TypeDeletionSweep     = "deletion:sweep"
	TypePublishSweep      = "publish:sweep"
)

// TranscriptPayload carries one transcript-ready event. Either the
// transcript text is inlined (legacy ingestion) or a download URL plus
// short-lived token point at it (Zoom webhook).
type TranscriptPayload struct {
	SourceSessionID string   `json:"source_session_id"`
	SessionSequence int      `json:"session_sequence"`
	Topic           string   `json:"topic"`
	Transcript      string   `json:"transcript,omitempty"`
	DownloadURL     string   `json:"download_url,omitempty"`
	DownloadToken   string   `json:"download_token,omitempty"`
	HostEmail       string   `json:"host_email"`
	Participants    []string `json:"participants,omitempty"`
	Summary         string   `json:"summary,omitempty"`

	// Set for manual ingestion, where the owner is already known.
	OwnerID uuid.UUID `json:"owner_id,omitempty"`
}

func NewTranscriptTask(payload TranscriptPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTranscriptProcess, data,
		asynq.Queue(queue.QueueTranscripts),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	), nil
}

// PublishPayload identifies the post to publish.
type PublishPayload struct {
	PostID uuid.UUID `json:"post_id"`
}

func NewPublishTask(postID uuid.UUID, delay time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(PublishPayload{PostID: postID})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(queue.QueuePublishing),
		asynq.MaxRetry(5),
		asynq.Timeout(2 * time.Minute),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return asynq.NewTask(TypePublishPost, data, opts...), nil
}

// DeletionPayload identifies the deletion request to process.
type DeletionPayload struct {
	RequestID uuid.UUID `json:"request_id"`
}

func NewDeletionTask(requestID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(DeletionPayload{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeletionProcess, data,
		asynq.Queue(queue.QueueDeletions),
		asynq.MaxRetry(5),
		asynq.Timeout(15*time.Minute),
	), nil
}

// Sweep tasks are empty; they query the store for whatever is due.
func NewDeletionSweepTask() *asynq.Task {
	return asynq.NewTask(TypeDeletionSweep, nil, asynq.Queue(queue.QueueDeletions))
}

func NewPublishSweepTask() *asynq.Task {
	return asynq.NewTask(TypePublishSweep, nil, asynq.Queue(queue.QueuePublishing))
}
