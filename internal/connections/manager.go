package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/pkg/crypto"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// refreshHorizon is how close to expiry a token may get before Get
// refreshes it proactively. Callers must never receive an expired token.
const refreshHorizon = 5 * time.Minute

const httpTimeout = 15 * time.Second

// ErrReauthorizationRequired is surfaced when a refresh-and-retry cycle
// failed and the connection has been torn down. The user must go through
// the OAuth flow again.
var ErrReauthorizationRequired = errors.New("platform re-authorization required")

// Profile is the provider identity snapshot captured when a connection is
// saved or refreshed.
type Profile struct {
	UserID string
	Email  string
	Name   string
}

// PlatformCredentials holds one platform's OAuth app configuration.
type PlatformCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Manager owns the per-user, per-platform OAuth connection lifecycle:
// upsert on callback, proactive refresh on expiry, idempotent removal.
// Token state is never cached; every call reads fresh rows.
type Manager struct {
	db         *gorm.DB
	vault      *crypto.Vault
	logger     *slog.Logger
	platforms  map[models.Platform]PlatformCredentials
	httpClient *http.Client
}

func NewManager(db *gorm.DB, vault *crypto.Vault, logger *slog.Logger, platforms map[models.Platform]PlatformCredentials) *Manager {
	return &Manager{
		db:         db,
		vault:      vault,
		logger:     logger,
		platforms:  platforms,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// Save upserts the connection for (userID, platform). The upsert is an
// explicit find-then-create-or-update so both branches are visible.
func (m *Manager) Save(ctx context.Context, userID uuid.UUID, platform models.Platform, token *oauth2.Token, profile Profile) (*models.PlatformConnection, error) {
	encAccess, err := m.vault.Encrypt(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting access token: %w", err)
	}
	encRefresh, err := m.vault.Encrypt(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting refresh token: %w", err)
	}

	var conn models.PlatformConnection
	err = m.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&conn).Error

	switch {
	case err == nil:
		updates := map[string]interface{}{
			"encrypted_access_token":  encAccess,
			"encrypted_refresh_token": encRefresh,
			"expires_at":              token.Expiry,
			"provider_user_id":        profile.UserID,
			"provider_email":          profile.Email,
			"provider_name":           profile.Name,
		}
		if err := m.db.WithContext(ctx).Model(&conn).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("updating connection: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		conn = models.PlatformConnection{
			UserID:                userID,
			Platform:              platform,
			EncryptedAccessToken:  encAccess,
			EncryptedRefreshToken: encRefresh,
			ExpiresAt:             token.Expiry,
			ProviderUserID:        profile.UserID,
			ProviderEmail:         profile.Email,
			ProviderName:          profile.Name,
			ConnectedAt:           time.Now(),
		}
		if err := m.db.WithContext(ctx).Create(&conn).Error; err != nil {
			return nil, fmt.Errorf("creating connection: %w", err)
		}
	default:
		return nil, fmt.Errorf("looking up connection: %w", err)
	}

	return &conn, nil
}

// Get returns the user's connection for a platform, refreshing the token
// first when it is within the refresh horizon. A missing connection and a
// failed refresh both return (nil, nil): the caller has no usable
// credential either way and must not see a stale token.
func (m *Manager) Get(ctx context.Context, userID uuid.UUID, platform models.Platform) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up connection: %w", err)
	}

	if time.Until(conn.ExpiresAt) < refreshHorizon {
		if err := m.Refresh(ctx, &conn); err != nil {
			m.logger.Warn("token refresh failed",
				"user_id", userID,
				"platform", platform,
				"error", err,
			)
			return nil, nil
		}
	}

	return &conn, nil
}

// Refresh exchanges the stored refresh token for a new token pair and
// persists it. On failure the existing row is left untouched; a retry path
// reconciles later.
func (m *Manager) Refresh(ctx context.Context, conn *models.PlatformConnection) error {
	creds, ok := m.platforms[conn.Platform]
	if !ok {
		return fmt.Errorf("no credentials configured for platform %q", conn.Platform)
	}

	refreshToken, ok := m.vault.Decrypt(conn.EncryptedRefreshToken)
	if !ok || refreshToken == "" {
		return errors.New("stored refresh token is unusable")
	}

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: creds.TokenURL},
	}

	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return fmt.Errorf("exchanging refresh token: %w", err)
	}

	encAccess, err := m.vault.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	// Providers may rotate the refresh token on every exchange or keep it;
	// only overwrite when a new one came back.
	encRefresh := conn.EncryptedRefreshToken
	if token.RefreshToken != "" {
		encRefresh, err = m.vault.Encrypt(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
	}

	updates := map[string]interface{}{
		"encrypted_access_token":  encAccess,
		"encrypted_refresh_token": encRefresh,
		"expires_at":              token.Expiry,
	}
	if err := m.db.WithContext(ctx).Model(conn).Updates(updates).Error; err != nil {
		return fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	conn.EncryptedAccessToken = encAccess
	conn.EncryptedRefreshToken = encRefresh
	conn.ExpiresAt = token.Expiry
	return nil
}

// AccessToken returns the plaintext access token, or "" when the user has
// no usable connection.
func (m *Manager) AccessToken(ctx context.Context, userID uuid.UUID, platform models.Platform) (string, error) {
	conn, err := m.Get(ctx, userID, platform)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", nil
	}
	token, ok := m.vault.Decrypt(conn.EncryptedAccessToken)
	if !ok {
		m.logger.Warn("stored access token is unusable",
			"user_id", userID,
			"platform", platform,
		)
		return "", nil
	}
	return token, nil
}

// Remove deletes the connection. Deleting a connection that does not exist
// is not an error.
func (m *Manager) Remove(ctx context.Context, userID uuid.UUID, platform models.Platform) error {
	return m.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Delete(&models.PlatformConnection{}).Error
}

// FindConnection fetches the stored row without touching token state.
// Callers that need a usable token go through Get instead.
func (m *Manager) FindConnection(ctx context.Context, userID uuid.UUID, platform models.Platform) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up connection: %w", err)
	}
	return &conn, nil
}

// FindByProviderEmail correlates an inbound webhook's host email with a
// stored connection. Case-insensitive; the fan-out per platform is small
// enough that an indexed lower() scan is fine.
func (m *Manager) FindByProviderEmail(ctx context.Context, platform models.Platform, email string) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := m.db.WithContext(ctx).
		Where("platform = ? AND LOWER(provider_email) = LOWER(?)", platform, email).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up connection by email: %w", err)
	}
	return &conn, nil
}

// FindByProviderUserID correlates a platform-side user id (e.g. from a
// deauthorization webhook) with a stored connection.
func (m *Manager) FindByProviderUserID(ctx context.Context, platform models.Platform, providerUserID string) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := m.db.WithContext(ctx).
		Where("platform = ? AND provider_user_id = ?", platform, providerUserID).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up connection by provider user id: %w", err)
	}
	return &conn, nil
}

// RecoverUnauthorized implements the 401/403 contract: one refresh-and-retry
// attempt. It returns a fresh access token for the retry; if the refresh
// itself fails, the connection is torn down and ErrReauthorizationRequired
// is returned so the caller stops retrying and asks the user to reconnect.
func (m *Manager) RecoverUnauthorized(ctx context.Context, userID uuid.UUID, platform models.Platform) (string, error) {
	var conn models.PlatformConnection
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrReauthorizationRequired
	}
	if err != nil {
		return "", fmt.Errorf("looking up connection: %w", err)
	}

	if err := m.Refresh(ctx, &conn); err != nil {
		m.logger.Warn("refresh after unauthorized response failed, removing connection",
			"user_id", userID,
			"platform", platform,
			"error", err,
		)
		if removeErr := m.Remove(ctx, userID, platform); removeErr != nil {
			return "", fmt.Errorf("removing dead connection: %w", removeErr)
		}
		return "", ErrReauthorizationRequired
	}

	token, ok := m.vault.Decrypt(conn.EncryptedAccessToken)
	if !ok {
		return "", ErrReauthorizationRequired
	}
	return token, nil
}

// Invalidate removes the connection after a retry with a refreshed token
// still came back unauthorized.
func (m *Manager) Invalidate(ctx context.Context, userID uuid.UUID, platform models.Platform) error {
	if err := m.Remove(ctx, userID, platform); err != nil {
		return err
	}
	return ErrReauthorizationRequired
}
