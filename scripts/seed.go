//go:build ignore

package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/recastlabs/recast/internal/database"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/pkg/config"
	"github.com/recastlabs/recast/pkg/util"
)

// Seeds a demo account with a company profile, consent, and one generated
// draft so the review surface has something to show.
// Run with: go run scripts/seed.go
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "seed")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	email := os.Getenv("SEED_EMAIL")
	if email == "" {
		email = "demo@example.com"
	}

	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err == nil {
		log.Printf("user %s already seeded", email)
		return
	}

	user = models.User{
		ExternalID: "seed|" + email,
		Email:      email,
		Name:       "Demo User",
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	company := models.Company{
		UserID: user.ID,
		Name:   "Demo Marketing Co",
		BrandVoice: models.BrandVoice{
			Tone:     "direct and practical",
			Audience: "B2B founders",
			Themes:   []string{"product strategy", "hiring"},
		},
		ContentPillars:  []string{"leadership", "product", "growth"},
		PostingSchedule: "0 9 * * 1,3,5",
	}
	if err := db.Create(&company).Error; err != nil {
		log.Fatalf("failed to create company: %v", err)
	}

	consent := models.UserConsent{
		UserID:       user.ID,
		AIProcessing: true,
		ConsentedAt:  time.Now(),
		Version:      "v1",
	}
	if err := db.Create(&consent).Error; err != nil {
		log.Fatalf("failed to create consent: %v", err)
	}

	meeting := models.Meeting{
		CompanyID:       company.ID,
		SourceSessionID: "seed-session",
		SessionSequence: 1,
		Topic:           "Q3 planning",
		Transcript:      "We walked through the Q3 launch plan and hiring priorities.",
	}
	if err := db.Create(&meeting).Error; err != nil {
		log.Fatalf("failed to create meeting: %v", err)
	}

	hook := models.ContentHook{
		MeetingID: meeting.ID,
		Text:      "Your Q3 plan is only as good as your hiring plan",
		Pillar:    "leadership",
	}
	if err := db.Create(&hook).Error; err != nil {
		log.Fatalf("failed to create hook: %v", err)
	}

	post := models.ContentPost{
		HookID:  hook.ID,
		Content: "Most Q3 plans fail in week two. Not because the strategy was wrong, but because the team to execute it was never hired...",
		Status:  models.PostStatusPending,
	}
	if err := db.Create(&post).Error; err != nil {
		log.Fatalf("failed to create post: %v", err)
	}

	log.Printf("seeded demo account %s with one pending draft", email)
}
