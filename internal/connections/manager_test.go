package connections_test

import (
	"encoding/json"
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
	"golang.org/x/oauth2"
)

// tokenServer fakes a platform token endpoint. Each response hands out a
// fresh access token so tests can observe whether a refresh happened.
func tokenServer(t *testing.T, fail bool) (*httptest.Server, *int) {
	t.Helper()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "refreshed-access",
			"refresh_token": "refreshed-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestManager(t *testing.T, ts *testutil.TestSetup, tokenURL string) *connections.Manager {
	t.Helper()

	platforms := map[models.Platform]connections.PlatformCredentials{
		models.PlatformZoom:     {ClientID: "zoom-id", ClientSecret: "zoom-secret", TokenURL: tokenURL},
		models.PlatformLinkedIn: {ClientID: "li-id", ClientSecret: "li-secret", TokenURL: tokenURL},
	}
	return connections.NewManager(ts.DB, ts.Vault, slog.Default(), platforms)
}

func TestManager_SaveUpserts(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	mgr := newTestManager(t, ts, "http://unused.invalid")
	ctx := testutil.TestContext(t)

	token := &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}
	conn, err := mgr.Save(ctx, ts.User.ID, models.PlatformZoom, token, connections.Profile{
		UserID: "z123", Email: "Host@Example.com", Name: "Host",
	})
	require.NoError(t, err)
	assert.Equal(t, "z123", conn.ProviderUserID)

	// Tokens are stored encrypted
	assert.NotEqual(t, "access-1", conn.EncryptedAccessToken)
	plaintext, ok := ts.Vault.Decrypt(conn.EncryptedAccessToken)
	require.True(t, ok)
	assert.Equal(t, "access-1", plaintext)

	// Second save for the same pair updates, never duplicates
	token2 := &oauth2.Token{AccessToken: "access-2", RefreshToken: "refresh-2", Expiry: time.Now().Add(2 * time.Hour)}
	_, err = mgr.Save(ctx, ts.User.ID, models.PlatformZoom, token2, connections.Profile{UserID: "z123"})
	require.NoError(t, err)

	var count int64
	ts.DB.Model(&models.PlatformConnection{}).Where("user_id = ?", ts.User.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	got, err := mgr.AccessToken(ctx, ts.User.ID, models.PlatformZoom)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got)
}

func TestManager_GetRefreshesNearExpiry(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	srv, calls := tokenServer(t, false)
	mgr := newTestManager(t, ts, srv.URL)
	ctx := testutil.TestContext(t)

	// Expires in 2 minutes: inside the 5-minute horizon
	testutil.CreateTestConnection(t, ts.DB, ts.Vault, ts.User, models.PlatformZoom, time.Now().Add(2*time.Minute))

	conn, err := mgr.Get(ctx, ts.User.ID, models.PlatformZoom)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 1, *calls, "refresh should have been attempted")

	access, ok := ts.Vault.Decrypt(conn.EncryptedAccessToken)
	require.True(t, ok)
	assert.Equal(t, "refreshed-access", access)
	assert.Greater(t, time.Until(conn.ExpiresAt), 30*time.Minute)
}

func TestManager_GetSkipsRefreshWhenFresh(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	srv, calls := tokenServer(t, false)
	mgr := newTestManager(t, ts, srv.URL)
	ctx := testutil.TestContext(t)

	testutil.CreateTestConnection(t, ts.DB, ts.Vault, ts.User, models.PlatformZoom, time.Now().Add(time.Hour))

	conn, err := mgr.Get(ctx, ts.User.ID, models.PlatformZoom)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 0, *calls)
}

func TestManager_GetReturnsNilOnFailedRefresh(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	srv, _ := tokenServer(t, true)
	mgr := newTestManager(t, ts, srv.URL)
	ctx := testutil.TestContext(t)

	stale := testutil.CreateTestConnection(t, ts.DB, ts.Vault, ts.User, models.PlatformZoom, time.Now().Add(2*time.Minute))

	conn, err := mgr.Get(ctx, ts.User.ID, models.PlatformZoom)
	require.NoError(t, err)
	assert.Nil(t, conn, "expired-and-unrefreshable connection must not be returned")

	// The row itself is untouched for later reconciliation
	var kept models.PlatformConnection
	require.NoError(t, ts.DB.First(&kept, "id = ?", stale.ID).Error)
	assert.Equal(t, stale.EncryptedAccessToken, kept.EncryptedAccessToken)
}

func TestManager_GetMissingConnection(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	mgr := newTestManager(t, ts, "http://unused.invalid")
	ctx := testutil.TestContext(t)

	conn, err := mgr.Get(ctx, ts.User.ID, models.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestManager_RemoveIsIdempotent(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	mgr := newTestManager(t, ts, "http://unused.invalid")
	ctx := testutil.TestContext(t)

	testutil.CreateTestConnection(t, ts.DB, ts.Vault, ts.User, models.PlatformZoom, time.Now().Add(time.Hour))

	require.NoError(t, mgr.Remove(ctx, ts.User.ID, models.PlatformZoom))
	require.NoError(t, mgr.Remove(ctx, ts.User.ID, models.PlatformZoom), "second remove is a no-op")

	conn, err := mgr.Get(ctx, ts.User.ID, models.PlatformZoom)
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestManager_FindByProviderEmail(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	mgr := newTestManager(t, ts, "http://unused.invalid")
	ctx := testutil.TestContext(t)

	conn := testutil.CreateTestConnection(t, ts.DB, ts.Vault, ts.User, models.PlatformZoom, time.Now().Add(time.Hour))
	ts.DB.Model(conn).Update("provider_email", "Host@Example.COM")

	found, err := mgr.FindByProviderEmail(ctx, models.PlatformZoom, "host@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, conn.ID, found.ID)

	missing, err := mgr.FindByProviderEmail(ctx, models.PlatformZoom, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestManager_RecoverUnauthorized(t *testing.T) {
	t.Run("refresh succeeds", func(t *testing.T) {
		ts := testutil.NewTestContext(t)
		defer ts.Cleanup()
		srv, _ := tokenServer(t, false)
		mgr := newTestManager(t, ts, srv.URL)
		ctx := testutil.TestContext(t)

		testutil.CreateTestConnection(t, ts.DB, ts.Vault, ts.User, models.PlatformLinkedIn, time.Now().Add(time.Hour))

		token, err := mgr.RecoverUnauthorized(ctx, ts.User.ID, models.PlatformLinkedIn)
		require.NoError(t, err)
		assert.Equal(t, "refreshed-access", token)
	})

	t.Run("refresh fails, connection torn down", func(t *testing.T) {
		ts := testutil.NewTestContext(t)
		defer ts.Cleanup()
		srv, _ := tokenServer(t, true)
		mgr := newTestManager(t, ts, srv.URL)
		ctx := testutil.TestContext(t)

		testutil.CreateTestConnection(t, ts.DB, ts.Vault, ts.User, models.PlatformLinkedIn, time.Now().Add(time.Hour))

		_, err := mgr.RecoverUnauthorized(ctx, ts.User.ID, models.PlatformLinkedIn)
		assert.ErrorIs(t, err, connections.ErrReauthorizationRequired)

		var count int64
		ts.DB.Model(&models.PlatformConnection{}).Where("user_id = ?", ts.User.ID).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("no connection", func(t *testing.T) {
		ts := testutil.NewTestContext(t)
		defer ts.Cleanup()
		mgr := newTestManager(t, ts, "http://unused.invalid")

		_, err := mgr.RecoverUnauthorized(testutil.TestContext(t), ts.User.ID, models.PlatformZoom)
		assert.ErrorIs(t, err, connections.ErrReauthorizationRequired)
	})
}
