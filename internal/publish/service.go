package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database/models"
	"gorm.io/gorm"
)

// Outcome classifies how a publish attempt ended.
type Outcome string

const (
	OutcomePublished   Outcome = "published"
	OutcomeSkipped     Outcome = "skipped"     // post gone or status changed under us
	OutcomeRescheduled Outcome = "rescheduled" // rate limit exhausted, pushed to reset time
)

// Enqueuer re-enqueues a publish task after a delay. Implemented by the
// tasks package on top of the queue client.
type Enqueuer interface {
	EnqueuePublish(ctx context.Context, postID uuid.UUID, delay time.Duration) error
}

// Service publishes SCHEDULED posts. At publish time it re-validates
// everything it might otherwise have trusted: the post's status, the
// connection (fresh read with refresh-on-expiry), and the rolling rate
// limit. Rate-limit exhaustion is a reschedule, never a failure.
type Service struct {
	db        *gorm.DB
	logger    *slog.Logger
	conns     *connections.Manager
	limiter   RateLimiter
	publisher Publisher
	enqueuer  Enqueuer
	buffer    time.Duration
}

func NewService(db *gorm.DB, logger *slog.Logger, conns *connections.Manager, limiter RateLimiter, publisher Publisher, enqueuer Enqueuer, buffer time.Duration) *Service {
	if buffer <= 0 {
		buffer = 5 * time.Minute
	}
	return &Service{
		db:        db,
		logger:    logger,
		conns:     conns,
		limiter:   limiter,
		publisher: publisher,
		enqueuer:  enqueuer,
		buffer:    buffer,
	}
}

// Process attempts to publish one post.
func (s *Service) Process(ctx context.Context, postID uuid.UUID) (Outcome, error) {
	var post models.ContentPost
	err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Info("post not found, skipping", "post_id", postID)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading post: %w", err)
	}

	// Claim SCHEDULED → publishing. Duplicate tasks for one post are routine
	// (the sweep plus reschedule both enqueue), so a plain status check is
	// not enough: a zero-row update means another worker owns this post.
	claim := s.db.WithContext(ctx).
		Model(&models.ContentPost{}).
		Where("id = ? AND status = ?", postID, models.PostStatusScheduled).
		Update("status", models.PostStatusPublishing)
	if claim.Error != nil {
		return "", fmt.Errorf("claiming post: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		s.logger.Info("post no longer scheduled, skipping",
			"post_id", postID,
			"status", post.Status,
		)
		return OutcomeSkipped, nil
	}

	userID, err := s.resolveOwner(ctx, &post)
	if err != nil {
		s.release(ctx, postID)
		return "", err
	}

	conn, err := s.conns.Get(ctx, userID, models.PlatformLinkedIn)
	if err != nil {
		s.release(ctx, postID)
		return "", fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		reason := "LinkedIn connection is missing or expired; reconnect the account"
		if err := s.reject(ctx, postID, reason); err != nil {
			return "", err
		}
		return "", connections.ErrReauthorizationRequired
	}

	allowed, resetAt, err := s.limiter.Allow(ctx, userID, models.PlatformLinkedIn)
	if err != nil {
		s.release(ctx, postID)
		return "", fmt.Errorf("checking rate limit: %w", err)
	}
	if !allowed {
		return s.reschedule(ctx, postID, resetAt)
	}

	token, err := s.conns.AccessToken(ctx, userID, models.PlatformLinkedIn)
	if err != nil {
		s.release(ctx, postID)
		return "", fmt.Errorf("reading access token: %w", err)
	}
	if token == "" {
		reason := "stored LinkedIn token is unusable; reconnect the account"
		if err := s.reject(ctx, postID, reason); err != nil {
			return "", err
		}
		return "", connections.ErrReauthorizationRequired
	}

	content := PostContent{
		AuthorID:   conn.ProviderUserID,
		Text:       post.Content,
		Visibility: post.Visibility,
	}

	result, err := s.publisher.Publish(ctx, token, content)
	if errors.Is(err, ErrUnauthorized) {
		// One refresh-and-retry; a second rejection tears the connection down.
		result, err = s.retryUnauthorized(ctx, userID, content)
	}
	if err != nil {
		reason := fmt.Sprintf("publish failed: %v", err)
		if rejectErr := s.reject(ctx, postID, reason); rejectErr != nil {
			return "", rejectErr
		}
		return "", err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":           models.PostStatusPublished,
		"platform_post_id": result.PlatformPostID,
		"published_at":     now,
		"visibility":       result.Visibility,
	}
	if err := s.db.WithContext(ctx).Model(&models.ContentPost{}).Where("id = ?", postID).Updates(updates).Error; err != nil {
		return "", fmt.Errorf("marking post published: %w", err)
	}

	s.logger.Info("post published",
		"post_id", postID,
		"platform_post_id", result.PlatformPostID,
	)
	return OutcomePublished, nil
}

func (s *Service) retryUnauthorized(ctx context.Context, userID uuid.UUID, content PostContent) (*PublishResult, error) {
	token, err := s.conns.RecoverUnauthorized(ctx, userID, models.PlatformLinkedIn)
	if err != nil {
		return nil, err
	}

	result, err := s.publisher.Publish(ctx, token, content)
	if errors.Is(err, ErrUnauthorized) {
		return nil, s.conns.Invalidate(ctx, userID, models.PlatformLinkedIn)
	}
	return result, err
}

// release returns a claimed post to SCHEDULED so a retry can claim it again.
// Only valid before the remote publish call: releasing after it risks a
// double post.
func (s *Service) release(ctx context.Context, postID uuid.UUID) {
	err := s.db.WithContext(ctx).Model(&models.ContentPost{}).
		Where("id = ? AND status = ?", postID, models.PostStatusPublishing).
		Update("status", models.PostStatusScheduled).Error
	if err != nil {
		s.logger.Warn("failed to release publish claim", "post_id", postID, "error", err)
	}
}

// reschedule pushes the post past the rate-limit reset and re-enqueues the
// task with the matching delay. The post goes back to SCHEDULED.
func (s *Service) reschedule(ctx context.Context, postID uuid.UUID, resetAt time.Time) (Outcome, error) {
	nextAttempt := resetAt.Add(s.buffer)
	if err := s.db.WithContext(ctx).Model(&models.ContentPost{}).
		Where("id = ?", postID).
		Updates(map[string]interface{}{
			"status":        models.PostStatusScheduled,
			"scheduled_for": nextAttempt,
		}).Error; err != nil {
		return "", fmt.Errorf("rescheduling post: %w", err)
	}

	delay := time.Until(nextAttempt)
	if delay < 0 {
		delay = 0
	}
	if err := s.enqueuer.EnqueuePublish(ctx, postID, delay); err != nil {
		return "", fmt.Errorf("re-enqueueing publish: %w", err)
	}

	s.logger.Info("rate limit exhausted, post rescheduled",
		"post_id", postID,
		"next_attempt", nextAttempt,
	)
	return OutcomeRescheduled, nil
}

func (s *Service) reject(ctx context.Context, postID uuid.UUID, reason string) error {
	updates := map[string]interface{}{
		"status":           models.PostStatusRejected,
		"rejection_reason": reason,
	}
	if err := s.db.WithContext(ctx).Model(&models.ContentPost{}).Where("id = ?", postID).Updates(updates).Error; err != nil {
		return fmt.Errorf("marking post rejected: %w", err)
	}
	s.logger.Warn("post rejected", "post_id", postID, "reason", reason)
	return nil
}

// resolveOwner walks post → hook → meeting → company to the owning user.
func (s *Service) resolveOwner(ctx context.Context, post *models.ContentPost) (uuid.UUID, error) {
	var hook models.ContentHook
	if err := s.db.WithContext(ctx).First(&hook, "id = ?", post.HookID).Error; err != nil {
		return uuid.Nil, fmt.Errorf("loading hook: %w", err)
	}
	var meeting models.Meeting
	if err := s.db.WithContext(ctx).First(&meeting, "id = ?", hook.MeetingID).Error; err != nil {
		return uuid.Nil, fmt.Errorf("loading meeting: %w", err)
	}
	var company models.Company
	if err := s.db.WithContext(ctx).First(&company, "id = ?", meeting.CompanyID).Error; err != nil {
		return uuid.Nil, fmt.Errorf("loading company: %w", err)
	}
	return company.UserID, nil
}

// DueScheduled returns SCHEDULED posts whose publish time has arrived, for
// the periodic sweep.
func (s *Service) DueScheduled(ctx context.Context) ([]models.ContentPost, error) {
	var due []models.ContentPost
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?", models.PostStatusScheduled, time.Now()).
		Order("scheduled_for ASC").
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("listing due posts: %w", err)
	}
	return due, nil
}
