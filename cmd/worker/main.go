package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/recastlabs/recast/internal/connections"
	"github.com/recastlabs/recast/internal/database"
	"github.com/recastlabs/recast/internal/database/models"
	"github.com/recastlabs/recast/internal/deletion"
	"github.com/recastlabs/recast/internal/ingest"
	"github.com/recastlabs/recast/internal/pipeline"
	"github.com/recastlabs/recast/internal/publish"
	"github.com/recastlabs/recast/internal/tasks"
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

	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting recast worker", "env", cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	vault, err := crypto.NewVault(cfg.Encryption.Key, cfg.Server.Env)
	if err != nil {
		logger.Error("failed to initialize token vault", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})

	asynqClient := queue.NewClient(&cfg.Redis)
	defer asynqClient.Close()

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

	generator := pipeline.NewHTTPGenerator(cfg.Pipeline.BaseURL, cfg.Pipeline.APIKey, cfg.Pipeline.Timeout())
	ingestService := ingest.NewService(db, logger, connManager, generator, cfg.Pipeline.MaxHooks)

	notifier := deletion.NewZoomComplianceNotifier(
		cfg.Zoom.APIBaseURL+"/data_compliance",
		cfg.Zoom.ClientID,
		cfg.Zoom.ClientSecret,
	)
	deletionService := deletion.NewService(db, logger, notifier, cfg.Deletion.GraceDays)

	limiter := publish.NewRedisRateLimiter(redisClient, cfg.Publish.DailyLimit)
	publisher := publish.NewLinkedInPublisher(cfg.LinkedIn.APIBaseURL)
	enqueuer := &tasks.PublishEnqueuer{Client: asynqClient}
	publishService := publish.NewService(db, logger, connManager, limiter, publisher, enqueuer, cfg.Publish.RescheduleBuffer())

	handler := tasks.NewHandler(logger, asynqClient, ingestService, publishService, deletionService)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10)

	// Periodic sweeps keep the lanes fed without per-item timers.
	scheduler := queue.NewScheduler(&cfg.Redis)
	if _, err := scheduler.Register("*/5 * * * *", tasks.NewDeletionSweepTask()); err != nil {
		logger.Error("failed to register deletion sweep", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register("* * * * *", tasks.NewPublishSweepTask()); err != nil {
		logger.Error("failed to register publish sweep", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	redisClient.Close()
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
