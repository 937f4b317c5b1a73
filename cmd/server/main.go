package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/recastlabs/recast/internal/api"
	"github.com/recastlabs/recast/internal/auth"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/deletion"
	"github.com/recastlabs/recast/pkg/config"
	"github.com/recastlabs/recast/pkg/crypto"
	"github.com/recastlabs/recast/pkg/queue"
	"github.com/recastlabs/recast/pkg/util"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "api")
	slog.SetDefault(logger)

	logger.Info("starting recast server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	asynqClient := queue.NewClient(&cfg.Redis)

	vault, err := crypto.NewVault(cfg.Encryption.Key, cfg.Server.Env)
	if err != nil {
		logger.Error("failed to initialize token vault", "error", err)
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	userService := auth.NewService(db)

	connManager := connections.NewManager(db, vault, logger, map[models.Platform]connections.PlatformCredentials{
		models.PlatformZoom: {
			ClientID:     cfg.Zoom.ClientID,
			ClientSecret: cfg.Zoom.ClientSecret,
			TokenURL:     cfg.Zoom.TokenURL,
		},
		models.PlatformLinkedIn: {
			ClientID:     cfg.LinkedIn.ClientID,
			ClientSecret: cfg.LinkedIn.ClientSecret,
			TokenURL:     cfg.LinkedIn.TokenURL,
		},
	})

	notifier := deletion.NewZoomComplianceNotifier(
		cfg.Zoom.APIBaseURL+"/data_compliance",
		cfg.Zoom.ClientID,
		cfg.Zoom.ClientSecret,
	)
	deletionService := deletion.NewService(db, logger, notifier, cfg.Deletion.GraceDays)

	router := api.NewRouter(api.RouterConfig{
		DB:                db,
		Redis:             redisClient,
		Logger:            logger,
		JWTService:        jwtService,
		UserService:       userService,
		Connections:       connManager,
		Deletions:         deletionService,
		AsynqClient:       asynqClient,
		ZoomWebhookSecret: cfg.Zoom.WebhookSecret,
		DeletionGraceDays: cfg.Deletion.GraceDays,
		RateLimitReqs:     cfg.RateLimit.Requests,
		RateLimitSecs:     cfg.RateLimit.WindowSeconds,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	asynqClient.Close()
	redisClient.Close()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
