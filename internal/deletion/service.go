package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("deletion request not found")
	ErrNotCancelable = errors.New("deletion request is no longer pending")
)

// Outcome reports what Process did. Missing requests and requests in a
// terminal or in-flight state are no-op outcomes, not errors, so the queue
// does not retry them.
type Outcome struct {
	Found       bool
	Performed   bool
	PriorStatus models.DeletionStatus
}

// Service is the deletion-request state machine: PENDING → PROCESSING →
// COMPLETED/FAILED, with cancellation allowed only from PENDING. Process
// runs the cascading delete in strict dependency order and records every
// step in the request's audit log.
type Service struct {
	db        *gorm.DB
	logger    *slog.Logger
	notifier  ComplianceNotifier
	graceDays int
}

func NewService(db *gorm.DB, logger *slog.Logger, notifier ComplianceNotifier, graceDays int) *Service {
	if graceDays <= 0 {
		graceDays = 10
	}
	return &Service{
		db:        db,
		logger:    logger,
		notifier:  notifier,
		graceDays: graceDays,
	}
}

// Schedule creates a PENDING request due after the grace period. The delay
// exists so the user can cancel before anything irreversible happens. If a
// PENDING request already exists for the user it is reused, so a
// re-delivered deauthorization webhook does not stack teardown requests.
func (s *Service) Schedule(ctx context.Context, userID uuid.UUID, zoomUserID string, delayDays int) (*models.DeletionRequest, error) {
	if delayDays <= 0 {
		delayDays = s.graceDays
	}

	var existing models.DeletionRequest
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.DeletionStatusPending).
		First(&existing).Error
	if err == nil {
		if zoomUserID != "" && existing.ZoomUserID == "" {
			if err := s.db.WithContext(ctx).Model(&existing).Update("zoom_user_id", zoomUserID).Error; err != nil {
				return nil, fmt.Errorf("recording zoom user id: %w", err)
			}
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up pending request: %w", err)
	}

	req := models.DeletionRequest{
		UserID:       userID,
		ZoomUserID:   zoomUserID,
		Status:       models.DeletionStatusPending,
		ScheduledFor: time.Now().Add(time.Duration(delayDays) * 24 * time.Hour),
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, fmt.Errorf("creating deletion request: %w", err)
	}

	s.logger.Info("deletion scheduled",
		"request_id", req.ID,
		"user_id", userID,
		"scheduled_for", req.ScheduledFor,
	)
	return &req, nil
}

// Cancel removes a PENDING request. Once processing has begun there is no
// mid-flight cancel.
func (s *Service) Cancel(ctx context.Context, requestID uuid.UUID) error {
	var req models.DeletionRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up deletion request: %w", err)
	}
	if req.Status != models.DeletionStatusPending {
		return ErrNotCancelable
	}

	if err := s.db.WithContext(ctx).Delete(&req).Error; err != nil {
		return fmt.Errorf("deleting deletion request: %w", err)
	}

	s.logger.Info("deletion canceled", "request_id", requestID, "user_id", req.UserID)
	return nil
}

// Get loads a request by id; (nil, nil) when missing.
func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*models.DeletionRequest, error) {
	var req models.DeletionRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByUser returns the user's most recent request, (nil, nil) when none.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) (*models.DeletionRequest, error) {
	var req models.DeletionRequest
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// PendingDue returns PENDING requests whose grace period has elapsed,
// oldest first. The sweep task feeds these into the deletions lane.
func (s *Service) PendingDue(ctx context.Context) ([]models.DeletionRequest, error) {
	var due []models.DeletionRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.DeletionStatusPending, time.Now()).
		Order("scheduled_for ASC").
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("listing due deletions: %w", err)
	}
	return due, nil
}

// cascadeStep deletes one entity type and reports the affected-row count.
type cascadeStep struct {
	entity string
	run    func(tx *gorm.DB) (int64, error)
}

// Process runs the cascading delete for one request.
//
// The status guard makes duplicate job deliveries safe: only a PENDING
// request moves to PROCESSING, and a second delivery observes the terminal
// state and no-ops, which also guarantees the compliance notification is
// sent at most once. Steps run children-before-parents and the user row is
// always last; nothing after it touches the user.
func (s *Service) Process(ctx context.Context, requestID uuid.UUID) (Outcome, error) {
	var req models.DeletionRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Info("deletion request not found, skipping", "request_id", requestID)
		return Outcome{Found: false}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("loading deletion request: %w", err)
	}

	// Claim PENDING → PROCESSING. A zero-row update means someone else got
	// there first (or the request is terminal): report, don't error.
	claim := s.db.WithContext(ctx).
		Model(&models.DeletionRequest{}).
		Where("id = ? AND status = ?", requestID, models.DeletionStatusPending).
		Update("status", models.DeletionStatusProcessing)
	if claim.Error != nil {
		return Outcome{}, fmt.Errorf("claiming deletion request: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		s.logger.Info("deletion request already handled",
			"request_id", requestID,
			"status", req.Status,
		)
		return Outcome{Found: true, PriorStatus: req.Status}, nil
	}

	audit := models.DeletionAudit{StartedAt: time.Now()}
	userID := req.UserID

	companyIDs := s.db.Model(&models.Company{}).Select("id").Where("user_id = ?", userID)
	meetingIDs := s.db.Model(&models.Meeting{}).Select("id").Where("company_id IN (?)", companyIDs)
	hookIDs := s.db.Model(&models.ContentHook{}).Select("id").Where("meeting_id IN (?)", meetingIDs)

	steps := []cascadeStep{
		{"content_posts", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("hook_id IN (?)", hookIDs).Delete(&models.ContentPost{})
			return res.RowsAffected, res.Error
		}},
		{"content_hooks", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("meeting_id IN (?)", meetingIDs).Delete(&models.ContentHook{})
			return res.RowsAffected, res.Error
		}},
		{"meetings", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("company_id IN (?)", companyIDs).Delete(&models.Meeting{})
			return res.RowsAffected, res.Error
		}},
		{"companies", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("user_id = ?", userID).Delete(&models.Company{})
			return res.RowsAffected, res.Error
		}},
		{"platform_connections", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("user_id = ?", userID).Delete(&models.PlatformConnection{})
			return res.RowsAffected, res.Error
		}},
		{"user_consents", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("user_id = ?", userID).Delete(&models.UserConsent{})
			return res.RowsAffected, res.Error
		}},
		{"deletion_requests", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("user_id = ? AND id != ?", userID, requestID).Delete(&models.DeletionRequest{})
			return res.RowsAffected, res.Error
		}},
		{"users", func(tx *gorm.DB) (int64, error) {
			res := tx.Where("id = ?", userID).Delete(&models.User{})
			return res.RowsAffected, res.Error
		}},
	}

	for _, step := range steps {
		count, err := step.run(s.db.WithContext(ctx))
		if err != nil {
			return s.fail(ctx, requestID, audit, fmt.Errorf("deleting %s: %w", step.entity, err))
		}
		audit.DeletedItems = append(audit.DeletedItems, models.DeletedItem{Type: step.entity, Count: count})
	}

	// Best-effort compliance notification: the data is already gone, so a
	// failure here goes into the audit log but never fails the deletion.
	if req.ZoomUserID != "" && s.notifier != nil {
		if err := s.notifier.NotifyDataDeleted(ctx, req.ZoomUserID); err != nil {
			s.logger.Warn("compliance notification failed",
				"request_id", requestID,
				"zoom_user_id", req.ZoomUserID,
				"error", err,
			)
			audit.Errors = append(audit.Errors, fmt.Sprintf("compliance notification: %v", err))
		}
	}

	now := time.Now()
	audit.CompletedAt = &now
	updates := map[string]interface{}{
		"status":       models.DeletionStatusCompleted,
		"completed_at": now,
		"audit":        audit,
	}
	if err := s.db.WithContext(ctx).Model(&models.DeletionRequest{}).Where("id = ?", requestID).Updates(updates).Error; err != nil {
		return Outcome{}, fmt.Errorf("marking deletion completed: %w", err)
	}

	s.logger.Info("deletion completed",
		"request_id", requestID,
		"user_id", userID,
		"steps", len(audit.DeletedItems),
	)
	return Outcome{Found: true, Performed: true, PriorStatus: models.DeletionStatusPending}, nil
}

// fail records the partial audit log, marks the request FAILED, and returns
// the original error so the queue's retry policy sees it.
func (s *Service) fail(ctx context.Context, requestID uuid.UUID, audit models.DeletionAudit, cause error) (Outcome, error) {
	now := time.Now()
	audit.Errors = append(audit.Errors, cause.Error())
	audit.FailedAt = &now

	updates := map[string]interface{}{
		"status":    models.DeletionStatusFailed,
		"failed_at": now,
		"audit":     audit,
	}
	if err := s.db.WithContext(ctx).Model(&models.DeletionRequest{}).Where("id = ?", requestID).Updates(updates).Error; err != nil {
		s.logger.Error("failed to record deletion failure", "request_id", requestID, "error", err)
	}

	s.logger.Error("deletion failed", "request_id", requestID, "error", cause)
	return Outcome{Found: true, PriorStatus: models.DeletionStatusProcessing}, cause
}
