package models

import (
	"time"

	"github.com/google/uuid"
)

type Platform string

const (
	PlatformZoom     Platform = "zoom"
	PlatformLinkedIn Platform = "linkedin"
)

// PlatformConnection holds one user's OAuth credentials for one platform.
// Tokens are encrypted at rest by pkg/crypto.Vault; the unique index
// enforces at most one connection per (user, platform).
type PlatformConnection struct {
	Base
	UserID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_platform;not null" json:"user_id"`
	Platform Platform  `gorm:"uniqueIndex:idx_user_platform;not null" json:"platform"`

	EncryptedAccessToken  string    `gorm:"type:text;not null" json:"-"`
	EncryptedRefreshToken string    `gorm:"type:text" json:"-"`
	ExpiresAt             time.Time `gorm:"not null" json:"expires_at"`

	// Provider profile snapshot captured at connect time
	ProviderUserID string    `gorm:"index" json:"provider_user_id"`
	ProviderEmail  string    `gorm:"index" json:"provider_email"`
	ProviderName   string    `json:"provider_name"`
	ConnectedAt    time.Time `json:"connected_at"`
}

func (PlatformConnection) TableName() string {
	return "platform_connections"
}
