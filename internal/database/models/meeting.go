package models

import (
	"time"

	"github.com/google/uuid"
)

// Meeting is one processed transcript event. The unique index on
// (source_session_id, session_sequence) is what makes duplicate webhook
// deliveries collapse into a single row.
type Meeting struct {
	Base
	CompanyID uuid.UUID `gorm:"type:uuid;index;not null" json:"company_id"`

	SourceSessionID string `gorm:"uniqueIndex:idx_session;not null" json:"source_session_id"`
	SessionSequence int    `gorm:"uniqueIndex:idx_session;not null" json:"session_sequence"`

	Topic       string     `json:"topic"`
	Transcript  string     `gorm:"type:text" json:"transcript"`
	Summary     string     `gorm:"type:text" json:"summary"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// Relationships
	Hooks []ContentHook `gorm:"foreignKey:MeetingID" json:"hooks,omitempty"`
}

func (Meeting) TableName() string {
	return "meetings"
}
