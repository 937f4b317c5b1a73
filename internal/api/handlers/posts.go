package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/api/dto"
	"github.com/recastlabs/recast/internal/api/middleware"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/pkg/util"
	"gorm.io/gorm"
)

// PostHandler manages the review surface for generated drafts. Publishing
// itself happens on the worker; these endpoints only move status around.
type PostHandler struct {
	db *gorm.DB
}

func NewPostHandler(db *gorm.DB) *PostHandler {
	return &PostHandler{db: db}
}

type PostResponse struct {
	ID              string `json:"id"`
	HookID          string `json:"hook_id"`
	Content         string `json:"content"`
	ImageURL        string `json:"image_url,omitempty"`
	Status          string `json:"status"`
	ScheduledFor    string `json:"scheduled_for,omitempty"`
	PublishedAt     string `json:"published_at,omitempty"`
	PlatformPostID  string `json:"platform_post_id,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func postToResponse(post *models.ContentPost) PostResponse {
	resp := PostResponse{
		ID:              post.ID.String(),
		HookID:          post.HookID.String(),
		Content:         post.Content,
		ImageURL:        post.ImageURL,
		Status:          string(post.Status),
		PlatformPostID:  post.PlatformPostID,
		RejectionReason: post.RejectionReason,
		CreatedAt:       post.CreatedAt.Format(time.RFC3339),
	}
	if post.ScheduledFor != nil {
		resp.ScheduledFor = post.ScheduledFor.Format(time.RFC3339)
	}
	if post.PublishedAt != nil {
		resp.PublishedAt = post.PublishedAt.Format(time.RFC3339)
	}
	return resp
}

// ownedPosts scopes a query to posts the user owns, through the
// hook -> meeting -> company chain.
func (h *PostHandler) ownedPosts(userID uuid.UUID) *gorm.DB {
	return h.db.Model(&models.ContentPost{}).
		Joins("JOIN content_hooks ON content_hooks.id = content_posts.hook_id").
		Joins("JOIN meetings ON meetings.id = content_hooks.meeting_id").
		Joins("JOIN companies ON companies.id = meetings.company_id").
		Where("companies.user_id = ?", userID)
}

func (h *PostHandler) loadOwnedPost(r *http.Request) (*models.ContentPost, error) {
	postID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}

	userID := middleware.GetUserID(r.Context())
	var post models.ContentPost
	err = h.ownedPosts(userID).
		Where("content_posts.id = ?", postID).
		First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// nextSlot resolves the owning company's posting schedule to the next
// publication time. Falls back to 24h out when no schedule is configured.
func (h *PostHandler) nextSlot(post *models.ContentPost) time.Time {
	var company models.Company
	err := h.db.Model(&models.Company{}).
		Joins("JOIN meetings ON meetings.company_id = companies.id").
		Joins("JOIN content_hooks ON content_hooks.meeting_id = meetings.id").
		Where("content_hooks.id = ?", post.HookID).
		First(&company).Error
	if err == nil && company.PostingSchedule != "" {
		if next, cronErr := util.NextCronTime(company.PostingSchedule, time.Now()); cronErr == nil {
			return next
		}
	}
	return time.Now().Add(24 * time.Hour)
}

// List handles GET /api/v1/posts
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.ownedPosts(userID)
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("content_posts.status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count posts")
		return
	}

	var posts []models.ContentPost
	if err := query.
		Order("content_posts.created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&posts).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list posts")
		return
	}

	response := make([]PostResponse, len(posts))
	for i, post := range posts {
		response[i] = postToResponse(&post)
	}

	writeJSON(w, http.StatusOK, dto.NewPaginated(response, total, pagination))
}

// Get handles GET /api/v1/posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.loadOwnedPost(r)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load post")
		return
	}
	writeJSON(w, http.StatusOK, postToResponse(post))
}

// Approve handles POST /api/v1/posts/{id}/approve. The draft is assigned the
// company's next posting slot so a later schedule call can keep or move it.
func (h *PostHandler) Approve(w http.ResponseWriter, r *http.Request) {
	post, err := h.loadOwnedPost(r)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load post")
		return
	}

	if post.Status != models.PostStatusPending {
		writeError(w, http.StatusConflict, "Only pending posts can be approved")
		return
	}

	slot := h.nextSlot(post)
	post.Status = models.PostStatusApproved
	post.ScheduledFor = &slot
	if err := h.db.WithContext(r.Context()).Save(post).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to approve post")
		return
	}

	writeJSON(w, http.StatusOK, postToResponse(post))
}

type SchedulePostRequest struct {
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

func (req SchedulePostRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if req.ScheduledFor != "" {
		when, err := time.Parse(time.RFC3339, req.ScheduledFor)
		if err != nil {
			errs["scheduled_for"] = "Must be an RFC3339 timestamp"
		} else if when.Before(time.Now()) {
			errs["scheduled_for"] = "Must be in the future"
		}
	}
	return errs
}

// Schedule handles POST /api/v1/posts/{id}/schedule. Locks the post in for
// publication; the publish sweep picks it up when the time arrives.
func (h *PostHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	post, err := h.loadOwnedPost(r)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load post")
		return
	}

	if post.Status != models.PostStatusPending && post.Status != models.PostStatusApproved {
		writeError(w, http.StatusConflict, "Post cannot be scheduled from its current status")
		return
	}

	var req SchedulePostRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	var when time.Time
	switch {
	case req.ScheduledFor != "":
		when, _ = time.Parse(time.RFC3339, req.ScheduledFor)
	case post.ScheduledFor != nil && post.ScheduledFor.After(time.Now()):
		when = *post.ScheduledFor
	default:
		when = h.nextSlot(post)
	}

	post.Status = models.PostStatusScheduled
	post.ScheduledFor = &when
	if err := h.db.WithContext(r.Context()).Save(post).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to schedule post")
		return
	}

	writeJSON(w, http.StatusOK, postToResponse(post))
}

type RejectPostRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/v1/posts/{id}/reject
func (h *PostHandler) Reject(w http.ResponseWriter, r *http.Request) {
	post, err := h.loadOwnedPost(r)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load post")
		return
	}

	if post.Status == models.PostStatusPublished || post.Status == models.PostStatusPublishing {
		writeError(w, http.StatusConflict, "Published or in-flight posts cannot be rejected")
		return
	}

	var req RejectPostRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	post.Status = models.PostStatusRejected
	post.RejectionReason = req.Reason
	post.ScheduledFor = nil
	if err := h.db.WithContext(r.Context()).Save(post).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reject post")
		return
	}

	writeJSON(w, http.StatusOK, postToResponse(post))
}
