package models

type User struct {
	Base
	ExternalID string `gorm:"uniqueIndex;not null" json:"external_id"` // identity provider subject
	Email      string `gorm:"uniqueIndex;not null" json:"email"`
	Name       string `json:"name"`

	// Relationships
	Company     *Company             `gorm:"foreignKey:UserID" json:"company,omitempty"`
	Consent     *UserConsent         `gorm:"foreignKey:UserID" json:"-"`
	Connections []PlatformConnection `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string {
	return "users"
}
