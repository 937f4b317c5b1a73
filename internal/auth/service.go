package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/database/models"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EnsureUser returns the user for an identity-provider subject, creating
// the row on first authenticated request. Email/name are refreshed from
// the token so a stale snapshot self-heals.
func (s *Service) EnsureUser(ctx context.Context, externalID, email, name string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if err == nil {
		if (email != "" && user.Email != email) || (name != "" && user.Name != name) {
			updates := map[string]interface{}{}
			if email != "" {
				updates["email"] = email
			}
			if name != "" {
				updates["name"] = name
			}
			if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("updating user profile: %w", err)
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	user = models.User{
		ExternalID: externalID,
		Email:      email,
		Name:       name,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &user, nil
}

// GetUserByID loads a user by primary key.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
