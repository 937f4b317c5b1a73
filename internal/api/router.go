package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/recastlabs/recast/internal/api/handlers"
	"github.com/recastlabs/recast/internal/api/middleware"
	"github.com/recastlabs/recast/internal/auth"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/deletion"
	"github.com/recastlabs/recast/internal/webhooks"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB                *gorm.DB
	Redis             *redis.Client
	Logger            *slog.Logger
	JWTService        *auth.JWTService
	UserService       *auth.Service
	Connections       *connections.Manager
	Deletions         *deletion.Service
	AsynqClient       *asynq.Client
	ZoomWebhookSecret string
	DeletionGraceDays int
	AllowedOrigins    []string
	RateLimitReqs     int
	RateLimitSecs     int
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	accountHandler := handlers.NewAccountHandler(cfg.Deletions, cfg.Connections, cfg.DeletionGraceDays)
	connectionHandler := handlers.NewConnectionHandler(cfg.Connections)
	postHandler := handlers.NewPostHandler(cfg.DB)
	companyHandler := handlers.NewCompanyHandler(cfg.DB)
	transcriptHandler := handlers.NewTranscriptHandler(cfg.AsynqClient)
	zoomWebhook := webhooks.NewZoomHandler(cfg.Logger, cfg.ZoomWebhookSecret, cfg.Connections, cfg.Deletions, cfg.AsynqClient, cfg.DeletionGraceDays)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Webhooks authenticate via HMAC signature, not bearer tokens
	r.Post("/webhooks/zoom", zoomWebhook.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTService, cfg.UserService))

		r.Route("/account/deletion", func(r chi.Router) {
			r.Post("/", accountHandler.RequestDeletion)
			r.Delete("/", accountHandler.CancelDeletion)
			r.Get("/", accountHandler.DeletionStatus)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/{platform}", connectionHandler.Status)
			r.Delete("/{platform}", connectionHandler.Disconnect)
		})

		r.Route("/company", func(r chi.Router) {
			r.Get("/", companyHandler.Get)
			r.Put("/", companyHandler.Upsert)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.List)
			r.Get("/{id}", postHandler.Get)
			r.Post("/{id}/approve", postHandler.Approve)
			r.Post("/{id}/schedule", postHandler.Schedule)
			r.Post("/{id}/reject", postHandler.Reject)
		})

		r.Post("/transcripts", transcriptHandler.Ingest)
	})

	return &Router{r}
}
