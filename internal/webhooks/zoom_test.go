package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/deletion"
	"github.com/recastlabs/recast/internal/tasks"
	"github.com/recastlabs/recast/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "zoom-webhook-secret"

type fakeEnqueuer struct {
	enqueued []*asynq.Task
	err      error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

type zoomFixture struct {
	setup    *testutil.TestSetup
	handler  *ZoomHandler
	enqueuer *fakeEnqueuer
	conns    *connections.Manager
}

func newZoomFixture(t *testing.T) *zoomFixture {
	t.Helper()

	setup := testutil.NewTestContext(t)
	t.Cleanup(setup.Cleanup)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conns := connections.NewManager(setup.DB, setup.Vault, logger, nil)
	deletions := deletion.NewService(setup.DB, logger, nil, 10)
	enqueuer := &fakeEnqueuer{}

	return &zoomFixture{
		setup:    setup,
		handler:  NewZoomHandler(logger, testSecret, conns, deletions, enqueuer, 10),
		enqueuer: enqueuer,
		conns:    conns,
	}
}

func sign(body []byte, ts string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", bytes.NewReader(body))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(timestampHeader, ts)
	req.Header.Set(signatureHeader, sign(body, ts))
	return req
}

func TestZoomURLValidation(t *testing.T) {
	f := newZoomFixture(t)

	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"abc123"}}`)
	// No signature headers: the handshake happens before Zoom starts signing.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	f.handler.Handle(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp["plainToken"])

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("abc123"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), resp["encryptedToken"])
}

func TestZoomRejectsBadSignature(t *testing.T) {
	f := newZoomFixture(t)

	body := []byte(`{"event":"app_deauthorized","payload":{"user_id":"z123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", bytes.NewReader(body))
	req.Header.Set(timestampHeader, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(signatureHeader, "v0=deadbeef")
	rec := httptest.NewRecorder()

	f.handler.Handle(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestZoomRejectsStaleTimestamp(t *testing.T) {
	f := newZoomFixture(t)

	body := []byte(`{"event":"app_deauthorized","payload":{"user_id":"z123"}}`)
	ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", bytes.NewReader(body))
	req.Header.Set(timestampHeader, ts)
	req.Header.Set(signatureHeader, sign(body, ts))
	rec := httptest.NewRecorder()

	f.handler.Handle(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestZoomDeauthorization(t *testing.T) {
	f := newZoomFixture(t)

	conn := testutil.CreateTestConnection(t, f.setup.DB, f.setup.Vault, f.setup.User, models.PlatformZoom, time.Now().Add(time.Hour))
	require.NoError(t, f.setup.DB.Model(conn).Update("provider_user_id", "z123").Error)

	body := []byte(`{"event":"app_deauthorized","payload":{"user_id":"z123"}}`)
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, signedRequest(t, body))
	require.Equal(t, http.StatusOK, rec.Code)

	var connCount int64
	f.setup.DB.Model(&models.PlatformConnection{}).Where("user_id = ?", f.setup.User.ID).Count(&connCount)
	assert.EqualValues(t, 0, connCount, "connection should be removed immediately")

	var req models.DeletionRequest
	require.NoError(t, f.setup.DB.Where("user_id = ?", f.setup.User.ID).First(&req).Error)
	assert.Equal(t, models.DeletionStatusPending, req.Status)
	assert.Equal(t, "z123", req.ZoomUserID)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 10), req.ScheduledFor, time.Minute)

	// Zoom retries deliveries; a second one must not create a second request.
	rec = httptest.NewRecorder()
	f.handler.Handle(rec, signedRequest(t, body))
	require.Equal(t, http.StatusOK, rec.Code)

	var reqCount int64
	f.setup.DB.Model(&models.DeletionRequest{}).Where("user_id = ?", f.setup.User.ID).Count(&reqCount)
	assert.EqualValues(t, 1, reqCount)
}

func TestZoomDeauthorizationUnknownUser(t *testing.T) {
	f := newZoomFixture(t)

	body := []byte(`{"event":"app_deauthorized","payload":{"user_id":"nobody"}}`)
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, signedRequest(t, body))
	assert.Equal(t, http.StatusOK, rec.Code)

	var reqCount int64
	f.setup.DB.Model(&models.DeletionRequest{}).Count(&reqCount)
	assert.EqualValues(t, 0, reqCount)
}

func TestZoomTranscriptCompleted(t *testing.T) {
	f := newZoomFixture(t)

	body := []byte(`{
		"event": "recording.transcript_completed",
		"payload": {
			"object": {
				"session_id": "sess-42",
				"session_sequence": 1,
				"topic": "Roadmap sync",
				"host_email": "host@example.com",
				"download_url": "https://zoom.example.com/rec/download/abc"
			},
			"download_token": "short-lived-token"
		}
	}`)
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, signedRequest(t, body))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.enqueuer.enqueued, 1)
	task := f.enqueuer.enqueued[0]
	assert.Equal(t, tasks.TypeTranscriptProcess, task.Type())

	var payload tasks.TranscriptPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "sess-42", payload.SourceSessionID)
	assert.Equal(t, "host@example.com", payload.HostEmail)
	assert.Equal(t, "short-lived-token", payload.DownloadToken)
}

func TestZoomIgnoresUnknownEvents(t *testing.T) {
	f := newZoomFixture(t)

	body := []byte(`{"event":"meeting.started","payload":{}}`)
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, signedRequest(t, body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.enqueuer.enqueued)
}
