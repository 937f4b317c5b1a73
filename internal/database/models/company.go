package models

import "github.com/google/uuid"

// BrandVoice is the structured brand configuration handed to the content
// pipeline. Stored as a JSON column with a fixed shape rather than an
// open-ended map so the pipeline has a stable contract.
type BrandVoice struct {
	Tone        string   `json:"tone,omitempty"`
	Audience    string   `json:"audience,omitempty"`
	Themes      []string `json:"themes,omitempty"`
	SamplePosts []string `json:"sample_posts,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

type Company struct {
	Base
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Name   string    `gorm:"not null" json:"name"`

	BrandVoice     BrandVoice `gorm:"serializer:json" json:"brand_voice"`
	ContentPillars []string   `gorm:"serializer:json" json:"content_pillars"`

	// Posting schedule: cron expression for publish slots, e.g. "0 9 * * 1,3,5"
	PostingSchedule string `gorm:"size:100" json:"posting_schedule"`

	WebhookEnabled bool   `gorm:"default:false" json:"webhook_enabled"`
	WebhookToken   string `gorm:"index" json:"-"`

	// Relationships
	Meetings []Meeting `gorm:"foreignKey:CompanyID" json:"-"`
}

func (Company) TableName() string {
	return "companies"
}
