package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/pipeline"
	"gorm.io/gorm"
)

// ResultKind classifies how a transcript job ended. Everything here is a
// successful outcome from the queue's point of view; only real faults are
// returned as errors.
type ResultKind string

const (
	ResultProcessed        ResultKind = "processed"
	ResultDuplicate        ResultKind = "duplicate"
	ResultSkippedNoOwner   ResultKind = "skipped_no_owner"
	ResultSkippedNoCompany ResultKind = "skipped_no_company"
	ResultSkippedNoConsent ResultKind = "skipped_no_consent"
)

// Transcript is one transcript-ready event, from the Zoom webhook or the
// legacy manual ingestion endpoint.
type Transcript struct {
	SourceSessionID string
	SessionSequence int
	Topic           string
	Text            string
	HostEmail       string
	Participants    []string
	Summary         string

	// OwnerID pins the owner directly for manual ingestion, where the
	// caller is already authenticated. Webhook traffic leaves it zero and
	// correlates through the host email instead.
	OwnerID uuid.UUID
}

// Result reports what happened plus what was produced.
type Result struct {
	Kind      ResultKind
	MeetingID string
	Hooks     int
	Posts     int
}

// Service turns transcripts into content drafts. Duplicate deliveries for
// the same (source session, sequence) collapse into a single meeting; a
// missing company or withheld AI consent are legitimate business outcomes,
// not faults.
type Service struct {
	db        *gorm.DB
	logger    *slog.Logger
	conns     *connections.Manager
	generator pipeline.Generator
	maxHooks  int
}

func NewService(db *gorm.DB, logger *slog.Logger, conns *connections.Manager, generator pipeline.Generator, maxHooks int) *Service {
	if maxHooks <= 0 {
		maxHooks = 5
	}
	return &Service{
		db:        db,
		logger:    logger,
		conns:     conns,
		generator: generator,
		maxHooks:  maxHooks,
	}
}

// Process handles one transcript event end to end.
func (s *Service) Process(ctx context.Context, transcript Transcript) (*Result, error) {
	// Dedupe before any side effects. The unique index on the meetings
	// table backstops this check under concurrent delivery. Only a meeting
	// with processed_at set counts as done: a row without it was left by an
	// attempt that died before generation finished, and the retry must be
	// able to resume it rather than short-circuit as a duplicate.
	var existing models.Meeting
	var resuming bool
	err := s.db.WithContext(ctx).
		Where("source_session_id = ? AND session_sequence = ?", transcript.SourceSessionID, transcript.SessionSequence).
		First(&existing).Error
	switch {
	case err == nil && existing.ProcessedAt != nil:
		s.logger.Info("transcript already processed",
			"session_id", transcript.SourceSessionID,
			"sequence", transcript.SessionSequence,
		)
		return &Result{Kind: ResultDuplicate, MeetingID: existing.ID.String()}, nil
	case err == nil:
		resuming = true
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("checking for duplicate meeting: %w", err)
	}

	ownerID := transcript.OwnerID
	if ownerID == uuid.Nil {
		// Correlate the host email with a Zoom connection to find the owner
		conn, err := s.conns.FindByProviderEmail(ctx, models.PlatformZoom, transcript.HostEmail)
		if err != nil {
			return nil, fmt.Errorf("resolving transcript owner: %w", err)
		}
		if conn == nil {
			s.logger.Info("no connection for host email, skipping", "host_email", transcript.HostEmail)
			return &Result{Kind: ResultSkippedNoOwner}, nil
		}
		ownerID = conn.UserID
	}

	var company models.Company
	err = s.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Info("user has no company configured, skipping", "user_id", ownerID)
		return &Result{Kind: ResultSkippedNoCompany}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading company: %w", err)
	}

	var consent models.UserConsent
	err = s.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&consent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !consent.AIProcessing) {
		s.logger.Info("AI processing consent missing, skipping", "user_id", ownerID)
		return &Result{Kind: ResultSkippedNoConsent}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading consent: %w", err)
	}

	meeting := existing
	if resuming {
		// Drop any partial output the dead attempt left so regeneration
		// starts from a clean slate.
		hookIDs := s.db.Model(&models.ContentHook{}).Select("id").Where("meeting_id = ?", meeting.ID)
		if err := s.db.WithContext(ctx).Where("hook_id IN (?)", hookIDs).Delete(&models.ContentPost{}).Error; err != nil {
			return nil, fmt.Errorf("clearing partial posts: %w", err)
		}
		if err := s.db.WithContext(ctx).Where("meeting_id = ?", meeting.ID).Delete(&models.ContentHook{}).Error; err != nil {
			return nil, fmt.Errorf("clearing partial hooks: %w", err)
		}
	} else {
		meeting = models.Meeting{
			CompanyID:       company.ID,
			SourceSessionID: transcript.SourceSessionID,
			SessionSequence: transcript.SessionSequence,
			Topic:           transcript.Topic,
			Transcript:      transcript.Text,
			Summary:         transcript.Summary,
		}
		if err := s.db.WithContext(ctx).Create(&meeting).Error; err != nil {
			return nil, fmt.Errorf("creating meeting: %w", err)
		}
	}

	genReq := pipeline.Request{
		Topic:      transcript.Topic,
		Transcript: transcript.Text,
		Summary:    transcript.Summary,
		BrandVoice: company.BrandVoice,
		Pillars:    company.ContentPillars,
		MaxHooks:   s.maxHooks,
	}

	hooks, err := s.generator.GenerateHooks(ctx, genReq)
	if err != nil {
		return nil, fmt.Errorf("generating hooks: %w", err)
	}
	if len(hooks) > s.maxHooks {
		hooks = hooks[:s.maxHooks]
	}

	result := &Result{Kind: ResultProcessed, MeetingID: meeting.ID.String()}
	for _, idea := range hooks {
		hook := models.ContentHook{
			MeetingID: meeting.ID,
			Text:      idea.Text,
			Pillar:    idea.Pillar,
		}
		if err := s.db.WithContext(ctx).Create(&hook).Error; err != nil {
			return nil, fmt.Errorf("creating hook: %w", err)
		}
		result.Hooks++

		// One hook's generation failure must not abort the batch
		post, err := s.generator.GeneratePost(ctx, idea, genReq)
		if err != nil {
			s.logger.Warn("post generation failed for hook, skipping",
				"meeting_id", meeting.ID,
				"hook", idea.Text,
				"error", err,
			)
			continue
		}

		draft := models.ContentPost{
			HookID:   hook.ID,
			Content:  post.Content,
			ImageURL: post.ImageURL,
			Status:   models.PostStatusPending,
		}
		if err := s.db.WithContext(ctx).Create(&draft).Error; err != nil {
			return nil, fmt.Errorf("creating post: %w", err)
		}
		result.Posts++
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&meeting).Update("processed_at", now).Error; err != nil {
		return nil, fmt.Errorf("marking meeting processed: %w", err)
	}

	s.logger.Info("transcript processed",
		"meeting_id", meeting.ID,
		"hooks", result.Hooks,
		"posts", result.Posts,
	)
	return result, nil
}
