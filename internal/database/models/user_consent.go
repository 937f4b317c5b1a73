package models

import (
	"time"

	"github.com/google/uuid"
)

// UserConsent records whether the user allows transcripts to be processed
// by the AI pipeline. No content is generated without it.
type UserConsent struct {
	Base
	UserID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	AIProcessing bool      `gorm:"default:false" json:"ai_processing"`
	ConsentedAt  time.Time `json:"consented_at"`
	Version      string    `gorm:"size:50" json:"version"`
}

func (UserConsent) TableName() string {
	return "user_consents"
}
