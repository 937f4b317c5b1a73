package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/ingest"
	"github.com/recastlabs/recast/internal/pipeline"
	"github.com/recastlabs/recast/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator returns canned hooks and can fail post generation for
// specific hook texts.
type fakeGenerator struct {
	hooks     []pipeline.HookIdea
	hooksErr  error
	failPosts map[string]bool
}

func (f *fakeGenerator) GenerateHooks(ctx context.Context, req pipeline.Request) ([]pipeline.HookIdea, error) {
	if f.hooksErr != nil {
		return nil, f.hooksErr
	}
	return f.hooks, nil
}

func (f *fakeGenerator) GeneratePost(ctx context.Context, hook pipeline.HookIdea, req pipeline.Request) (*pipeline.GeneratedPost, error) {
	if f.failPosts[hook.Text] {
		return nil, errors.New("generation timed out")
	}
	return &pipeline.GeneratedPost{Content: "Draft for: " + hook.Text}, nil
}

type ingestFixture struct {
	ts  *testutil.TestSetup
	svc *ingest.Service
	gen *fakeGenerator
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	ts := testutil.NewTestContext(t)
	t.Cleanup(ts.Cleanup)

	mgr := connections.NewManager(ts.DB, ts.Vault, slog.Default(), nil)
	gen := &fakeGenerator{
		hooks: []pipeline.HookIdea{
			{Text: "hook one", Pillar: "product"},
			{Text: "hook two", Pillar: "culture"},
		},
	}
	return &ingestFixture{
		ts:  ts,
		svc: ingest.NewService(ts.DB, slog.Default(), mgr, gen, 5),
		gen: gen,
	}
}

func (f *ingestFixture) seedOwner(t *testing.T) {
	t.Helper()
	testutil.CreateTestCompany(t, f.ts.DB, f.ts.User)
	testutil.CreateTestConsent(t, f.ts.DB, f.ts.User)
	testutil.CreateTestConnection(t, f.ts.DB, f.ts.Vault, f.ts.User, models.PlatformZoom, time.Now().Add(time.Hour))
}

func sampleTranscript(hostEmail string) ingest.Transcript {
	return ingest.Transcript{
		SourceSessionID: "sess-abc",
		SessionSequence: 1,
		Topic:           "Quarterly planning",
		Text:            "We discussed the new launch.",
		HostEmail:       hostEmail,
	}
}

func TestService_ProcessHappyPath(t *testing.T) {
	f := newIngestFixture(t)
	f.seedOwner(t)
	ctx := testutil.TestContext(t)

	result, err := f.svc.Process(ctx, sampleTranscript(f.ts.User.Email))
	require.NoError(t, err)

	assert.Equal(t, ingest.ResultProcessed, result.Kind)
	assert.Equal(t, 2, result.Hooks)
	assert.Equal(t, 2, result.Posts)

	var meeting models.Meeting
	require.NoError(t, f.ts.DB.Preload("Hooks.Posts").First(&meeting, "source_session_id = ?", "sess-abc").Error)
	assert.NotNil(t, meeting.ProcessedAt)
	require.Len(t, meeting.Hooks, 2)
	for _, hook := range meeting.Hooks {
		require.Len(t, hook.Posts, 1)
		assert.Equal(t, models.PostStatusPending, hook.Posts[0].Status)
	}
}

func TestService_DuplicateDelivery(t *testing.T) {
	f := newIngestFixture(t)
	f.seedOwner(t)
	ctx := testutil.TestContext(t)

	first, err := f.svc.Process(ctx, sampleTranscript(f.ts.User.Email))
	require.NoError(t, err)
	require.Equal(t, ingest.ResultProcessed, first.Kind)

	second, err := f.svc.Process(ctx, sampleTranscript(f.ts.User.Email))
	require.NoError(t, err, "duplicate delivery is not an error")
	assert.Equal(t, ingest.ResultDuplicate, second.Kind)
	assert.Equal(t, first.MeetingID, second.MeetingID)

	var count int64
	f.ts.DB.Model(&models.Meeting{}).Count(&count)
	assert.Equal(t, int64(1), count, "exactly one meeting row")
}

func TestService_DistinctSequencesAreSeparateMeetings(t *testing.T) {
	f := newIngestFixture(t)
	f.seedOwner(t)
	ctx := testutil.TestContext(t)

	a := sampleTranscript(f.ts.User.Email)
	b := sampleTranscript(f.ts.User.Email)
	b.SessionSequence = 2

	_, err := f.svc.Process(ctx, a)
	require.NoError(t, err)
	result, err := f.svc.Process(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, ingest.ResultProcessed, result.Kind)

	var count int64
	f.ts.DB.Model(&models.Meeting{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestService_SkipOutcomes(t *testing.T) {
	t.Run("unknown host email", func(t *testing.T) {
		f := newIngestFixture(t)
		result, err := f.svc.Process(testutil.TestContext(t), sampleTranscript("nobody@example.com"))
		require.NoError(t, err)
		assert.Equal(t, ingest.ResultSkippedNoOwner, result.Kind)
	})

	t.Run("no company", func(t *testing.T) {
		f := newIngestFixture(t)
		testutil.CreateTestConsent(t, f.ts.DB, f.ts.User)
		testutil.CreateTestConnection(t, f.ts.DB, f.ts.Vault, f.ts.User, models.PlatformZoom, time.Now().Add(time.Hour))

		result, err := f.svc.Process(testutil.TestContext(t), sampleTranscript(f.ts.User.Email))
		require.NoError(t, err, "missing company is a business outcome, not a fault")
		assert.Equal(t, ingest.ResultSkippedNoCompany, result.Kind)
	})

	t.Run("no consent", func(t *testing.T) {
		f := newIngestFixture(t)
		testutil.CreateTestCompany(t, f.ts.DB, f.ts.User)
		testutil.CreateTestConnection(t, f.ts.DB, f.ts.Vault, f.ts.User, models.PlatformZoom, time.Now().Add(time.Hour))

		result, err := f.svc.Process(testutil.TestContext(t), sampleTranscript(f.ts.User.Email))
		require.NoError(t, err)
		assert.Equal(t, ingest.ResultSkippedNoConsent, result.Kind)

		var count int64
		f.ts.DB.Model(&models.Meeting{}).Count(&count)
		assert.Equal(t, int64(0), count, "nothing is processed without consent")
	})
}

func TestService_PerHookFailureIsIsolated(t *testing.T) {
	f := newIngestFixture(t)
	f.seedOwner(t)
	f.gen.failPosts = map[string]bool{"hook one": true}
	ctx := testutil.TestContext(t)

	result, err := f.svc.Process(ctx, sampleTranscript(f.ts.User.Email))
	require.NoError(t, err, "one hook's failure must not abort the batch")

	assert.Equal(t, ingest.ResultProcessed, result.Kind)
	assert.Equal(t, 2, result.Hooks)
	assert.Equal(t, 1, result.Posts)
}

func TestService_HookGenerationFailureIsFatal(t *testing.T) {
	f := newIngestFixture(t)
	f.seedOwner(t)
	f.gen.hooksErr = errors.New("model unavailable")

	_, err := f.svc.Process(testutil.TestContext(t), sampleTranscript(f.ts.User.Email))
	require.Error(t, err, "a transport-level pipeline failure is retryable")
}

func TestService_RetryAfterTransientFailureResumes(t *testing.T) {
	f := newIngestFixture(t)
	f.seedOwner(t)
	ctx := testutil.TestContext(t)

	f.gen.hooksErr = errors.New("model unavailable")
	_, err := f.svc.Process(ctx, sampleTranscript(f.ts.User.Email))
	require.Error(t, err)

	// The failed attempt left a meeting row without processed_at. The
	// queue's retry must pick it back up, not report a duplicate.
	f.gen.hooksErr = nil
	result, err := f.svc.Process(ctx, sampleTranscript(f.ts.User.Email))
	require.NoError(t, err)
	assert.Equal(t, ingest.ResultProcessed, result.Kind)
	assert.Equal(t, 2, result.Hooks)
	assert.Equal(t, 2, result.Posts)

	var meetings int64
	f.ts.DB.Model(&models.Meeting{}).Count(&meetings)
	assert.Equal(t, int64(1), meetings, "retry reuses the existing meeting row")

	var meeting models.Meeting
	require.NoError(t, f.ts.DB.Preload("Hooks").First(&meeting, "source_session_id = ?", "sess-abc").Error)
	assert.NotNil(t, meeting.ProcessedAt)
	assert.Len(t, meeting.Hooks, 2, "no duplicated hooks after the resume")
}

func TestService_PinnedOwnerSkipsEmailCorrelation(t *testing.T) {
	f := newIngestFixture(t)
	// Company and consent, but no Zoom connection: manual ingestion still works.
	testutil.CreateTestCompany(t, f.ts.DB, f.ts.User)
	testutil.CreateTestConsent(t, f.ts.DB, f.ts.User)

	transcript := sampleTranscript("nobody@example.com")
	transcript.OwnerID = f.ts.User.ID

	result, err := f.svc.Process(testutil.TestContext(t), transcript)
	require.NoError(t, err)
	assert.Equal(t, ingest.ResultProcessed, result.Kind)
}
