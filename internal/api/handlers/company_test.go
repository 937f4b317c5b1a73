package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCompanyCreates(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := NewCompanyHandler(setup.DB)
	body := UpsertCompanyRequest{
		Name:            "Acme Marketing",
		BrandVoice:      models.BrandVoice{Tone: "bold", Audience: "founders"},
		ContentPillars:  []string{"growth", "culture"},
		PostingSchedule: "0 10 * * 2,4",
		WebhookEnabled:  true,
	}

	req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/company", body, "")
	req = withUser(req, setup.User.ID, setup.User.Email)
	rec := httptest.NewRecorder()
	handler.Upsert(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var stored models.Company
	require.NoError(t, setup.DB.Where("user_id = ?", setup.User.ID).First(&stored).Error)
	assert.Equal(t, "Acme Marketing", stored.Name)
	assert.Equal(t, "bold", stored.BrandVoice.Tone)
	assert.NotEmpty(t, stored.WebhookToken, "enabling the webhook issues a token")
}

func TestUpsertCompanyUpdatesInPlace(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	company := testutil.CreateTestCompany(t, setup.DB, setup.User)

	handler := NewCompanyHandler(setup.DB)
	body := UpsertCompanyRequest{Name: "Renamed Co", PostingSchedule: "0 8 * * 1"}

	req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/company", body, "")
	req = withUser(req, setup.User.ID, setup.User.Email)
	rec := httptest.NewRecorder()
	handler.Upsert(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	setup.DB.Model(&models.Company{}).Where("user_id = ?", setup.User.ID).Count(&count)
	assert.EqualValues(t, 1, count)

	var stored models.Company
	require.NoError(t, setup.DB.First(&stored, "id = ?", company.ID).Error)
	assert.Equal(t, "Renamed Co", stored.Name)
}

func TestUpsertCompanyRejectsBadCron(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := NewCompanyHandler(setup.DB)
	body := UpsertCompanyRequest{Name: "Acme", PostingSchedule: "not a cron"}

	req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/company", body, "")
	req = withUser(req, setup.User.ID, setup.User.Email)
	rec := httptest.NewRecorder()
	handler.Upsert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCompanyNotConfigured(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := NewCompanyHandler(setup.DB)
	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/company", nil, "")
	req = withUser(req, setup.User.ID, setup.User.Email)
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
