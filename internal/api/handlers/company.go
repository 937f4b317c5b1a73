package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/recastlabs/recast/internal/api/dto"
	"github.com/recastlabs/recast/internal/api/middleware"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/pkg/util"
	"gorm.io/gorm"
)

// CompanyHandler covers onboarding: the brand-voice/pillars/schedule record
// that the content pipeline reads from.
type CompanyHandler struct {
	db *gorm.DB
}

func NewCompanyHandler(db *gorm.DB) *CompanyHandler {
	return &CompanyHandler{db: db}
}

type UpsertCompanyRequest struct {
	Name            string            `json:"name"`
	BrandVoice      models.BrandVoice `json:"brand_voice"`
	ContentPillars  []string          `json:"content_pillars"`
	PostingSchedule string            `json:"posting_schedule"`
	WebhookEnabled  bool              `json:"webhook_enabled"`
}

func (r UpsertCompanyRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Company name is required"
	}
	if r.PostingSchedule != "" {
		if err := util.ValidateCronExpr(r.PostingSchedule); err != nil {
			errors["posting_schedule"] = "Invalid cron expression"
		}
	}
	if len(r.ContentPillars) > 10 {
		errors["content_pillars"] = "At most 10 pillars"
	}
	return errors
}

// Get handles GET /api/v1/company
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var company models.Company
	err := h.db.WithContext(r.Context()).Where("user_id = ?", userID).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "No company configured")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load company")
		return
	}

	writeJSON(w, http.StatusOK, company)
}

// Upsert handles PUT /api/v1/company
func (h *CompanyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req UpsertCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	var company models.Company
	err := h.db.WithContext(r.Context()).Where("user_id = ?", userID).First(&company).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to load company")
		return
	}

	created := errors.Is(err, gorm.ErrRecordNotFound)
	company.UserID = userID
	company.Name = req.Name
	company.BrandVoice = req.BrandVoice
	company.ContentPillars = req.ContentPillars
	company.PostingSchedule = req.PostingSchedule
	company.WebhookEnabled = req.WebhookEnabled
	if req.WebhookEnabled && company.WebhookToken == "" {
		company.WebhookToken = uuid.NewString()
	}

	if err := h.db.WithContext(r.Context()).Save(&company).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save company")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, company)
}
