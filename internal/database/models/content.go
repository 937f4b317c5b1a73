package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentHook is a short marketing angle derived from a meeting transcript,
// tagged with one of the company's content pillars.
type ContentHook struct {
	Base
	MeetingID uuid.UUID `gorm:"type:uuid;index;not null" json:"meeting_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Pillar    string    `json:"pillar"`

	// Relationships
	Posts []ContentPost `gorm:"foreignKey:HookID" json:"posts,omitempty"`
}

func (ContentHook) TableName() string {
	return "content_hooks"
}

type PostStatus string

const (
	PostStatusPending    PostStatus = "pending"
	PostStatusApproved   PostStatus = "approved"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing" // claimed by a worker, publish in flight
	PostStatusPublished  PostStatus = "published"
	PostStatusRejected   PostStatus = "rejected"
)

// ContentPost is the publishable unit.
type ContentPost struct {
	Base
	HookID uuid.UUID `gorm:"type:uuid;index;not null" json:"hook_id"`

	Content  string     `gorm:"type:text;not null" json:"content"`
	ImageURL string     `json:"image_url,omitempty"`
	Status   PostStatus `gorm:"not null;index;default:'pending'" json:"status"`

	ScheduledFor    *time.Time `gorm:"index" json:"scheduled_for,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	PlatformPostID  string     `json:"platform_post_id,omitempty"`
	Visibility      string     `json:"visibility,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

func (ContentPost) TableName() string {
	return "content_posts"
}
