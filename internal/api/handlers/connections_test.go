package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnectionHandler(setup *testutil.TestSetup) *ConnectionHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConnectionHandler(connections.NewManager(setup.DB, setup.Vault, logger, nil))
}

func TestConnectionStatusConnected(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	conn := testutil.CreateTestConnection(t, setup.DB, setup.Vault, setup.User, models.PlatformLinkedIn, time.Now().Add(time.Hour))
	handler := newConnectionHandler(setup)

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/connections/linkedin", nil, "")
	req = withUser(req, setup.User.ID, setup.User.Email)
	req = withURLParam(req, "platform", "linkedin")
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConnectionResponse
	testutil.ParseJSONResponse(t, rec, &resp)
	assert.True(t, resp.Connected)
	assert.Equal(t, conn.ProviderEmail, resp.ProviderEmail)
}

func TestConnectionStatusNotConnected(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newConnectionHandler(setup)

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/connections/zoom", nil, "")
	req = withUser(req, setup.User.ID, setup.User.Email)
	req = withURLParam(req, "platform", "zoom")
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConnectionResponse
	testutil.ParseJSONResponse(t, rec, &resp)
	assert.False(t, resp.Connected)
}

func TestConnectionStatusUnknownPlatform(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newConnectionHandler(setup)

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/connections/myspace", nil, "")
	req = withUser(req, setup.User.ID, setup.User.Email)
	req = withURLParam(req, "platform", "myspace")
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	testutil.CreateTestConnection(t, setup.DB, setup.Vault, setup.User, models.PlatformLinkedIn, time.Now().Add(time.Hour))
	handler := newConnectionHandler(setup)

	for i := 0; i < 2; i++ {
		req := testutil.AuthenticatedRequest(t, http.MethodDelete, "/api/v1/connections/linkedin", nil, "")
		req = withUser(req, setup.User.ID, setup.User.Email)
		req = withURLParam(req, "platform", "linkedin")
		rec := httptest.NewRecorder()
		handler.Disconnect(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	var count int64
	setup.DB.Model(&models.PlatformConnection{}).Where("user_id = ?", setup.User.ID).Count(&count)
	assert.EqualValues(t, 0, count)
}
