package models

import (
	"time"

	"github.com/google/uuid"
)

type DeletionStatus string

const (
	DeletionStatusPending    DeletionStatus = "pending"
	DeletionStatusProcessing DeletionStatus = "processing"
	DeletionStatusCompleted  DeletionStatus = "completed"
	DeletionStatusFailed     DeletionStatus = "failed"
)

// DeletedItem is one step of the cascade in the audit log.
type DeletedItem struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// DeletionAudit is the durable compliance record of a cascade run.
type DeletionAudit struct {
	StartedAt    time.Time     `json:"startedAt"`
	DeletedItems []DeletedItem `json:"deletedItems"`
	Errors       []string      `json:"errors,omitempty"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	FailedAt     *time.Time    `json:"failedAt,omitempty"`
}

// DeletionRequest tracks a scheduled account teardown. UserID is a plain
// column, not a foreign key: the request must outlive the user it
// describes so the audit log stays queryable after the cascade.
type DeletionRequest struct {
	Base
	UserID     uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	ZoomUserID string         `gorm:"index" json:"zoom_user_id,omitempty"`
	Status     DeletionStatus `gorm:"not null;index;default:'pending'" json:"status"`

	ScheduledFor time.Time  `gorm:"index;not null" json:"scheduled_for"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`

	Audit DeletionAudit `gorm:"serializer:json" json:"audit"`
}

func (DeletionRequest) TableName() string {
	return "deletion_requests"
}
