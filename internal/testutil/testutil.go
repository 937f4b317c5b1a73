package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/auth"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/pkg/crypto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Company{},
		&models.PlatformConnection{},
		&models.UserConsent{},
		&models.Meeting{},
		&models.ContentHook{},
		&models.ContentPost{},
		&models.DeletionRequest{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CreateTestVault creates a vault with a fresh random key
func CreateTestVault(t *testing.T) *crypto.Vault {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate vault key: %v", err)
	}
	vault, err := crypto.NewVault(key, "development")
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	return vault
}

// CreateTestUser creates a test user
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		ExternalID: "ext-" + uuid.New().String()[:8],
		Email:      "test-" + uuid.New().String()[:8] + "@example.com",
		Name:       "Test User",
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestCompany creates a company owned by the given user
func CreateTestCompany(t *testing.T, db *gorm.DB, user *models.User) *models.Company {
	t.Helper()

	company := &models.Company{
		Base: models.Base{
			ID: uuid.New(),
		},
		UserID: user.ID,
		Name:   "Test Company",
		BrandVoice: models.BrandVoice{
			Tone:     "confident",
			Audience: "founders",
			Themes:   []string{"product", "growth"},
		},
		ContentPillars:  []string{"leadership", "product", "culture"},
		PostingSchedule: "0 9 * * 1,3,5",
	}

	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}

	return company
}

// CreateTestConsent records AI-processing consent for the user
func CreateTestConsent(t *testing.T, db *gorm.DB, user *models.User) *models.UserConsent {
	t.Helper()

	consent := &models.UserConsent{
		Base: models.Base{
			ID: uuid.New(),
		},
		UserID:       user.ID,
		AIProcessing: true,
		ConsentedAt:  time.Now(),
		Version:      "v1",
	}

	if err := db.Create(consent).Error; err != nil {
		t.Fatalf("failed to create test consent: %v", err)
	}

	return consent
}

// CreateTestConnection creates a connection with vault-encrypted tokens
func CreateTestConnection(t *testing.T, db *gorm.DB, vault *crypto.Vault, user *models.User, platform models.Platform, expiresAt time.Time) *models.PlatformConnection {
	t.Helper()

	encAccess, err := vault.Encrypt("access-" + uuid.New().String()[:8])
	if err != nil {
		t.Fatalf("failed to encrypt access token: %v", err)
	}
	encRefresh, err := vault.Encrypt("refresh-" + uuid.New().String()[:8])
	if err != nil {
		t.Fatalf("failed to encrypt refresh token: %v", err)
	}

	conn := &models.PlatformConnection{
		Base: models.Base{
			ID: uuid.New(),
		},
		UserID:                user.ID,
		Platform:              platform,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		ExpiresAt:             expiresAt,
		ProviderUserID:        "prov-" + uuid.New().String()[:8],
		ProviderEmail:         user.Email,
		ProviderName:          user.Name,
		ConnectedAt:           time.Now(),
	}

	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("failed to create test connection: %v", err)
	}

	return conn
}

// CreateTestMeeting creates a meeting with one hook and one post
func CreateTestMeeting(t *testing.T, db *gorm.DB, company *models.Company) (*models.Meeting, *models.ContentHook, *models.ContentPost) {
	t.Helper()

	meeting := &models.Meeting{
		Base: models.Base{
			ID: uuid.New(),
		},
		CompanyID:       company.ID,
		SourceSessionID: "sess-" + uuid.New().String()[:8],
		SessionSequence: 1,
		Topic:           "Weekly sync",
		Transcript:      "We talked about the roadmap.",
	}
	if err := db.Create(meeting).Error; err != nil {
		t.Fatalf("failed to create test meeting: %v", err)
	}

	hook := &models.ContentHook{
		Base: models.Base{
			ID: uuid.New(),
		},
		MeetingID: meeting.ID,
		Text:      "Your roadmap is a promise, not a plan",
		Pillar:    "product",
	}
	if err := db.Create(hook).Error; err != nil {
		t.Fatalf("failed to create test hook: %v", err)
	}

	post := &models.ContentPost{
		Base: models.Base{
			ID: uuid.New(),
		},
		HookID:  hook.ID,
		Content: "Here is what shipping weekly taught us about roadmaps...",
		Status:  models.PostStatusPending,
	}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("failed to create test post: %v", err)
	}

	return meeting, hook, post
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", "recast-test")
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ExternalID, user.Email, user.Name, 24*time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	Vault      *crypto.Vault
	JWTService *auth.JWTService
	User       *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, vault, user, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	vault := CreateTestVault(t)
	jwtService := CreateTestJWTService()
	user := CreateTestUser(t, db)
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		Vault:      vault,
		JWTService: jwtService,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
