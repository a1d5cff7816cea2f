package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/api"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/feed"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/metrics"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/notify"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/queue"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/reconcile"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/storage"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/stream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize repositories
	auditRepo := db.NewAuditRepository(database)
	learnerRepo := db.NewLearnerRepository(database)
	courseRepo := db.NewCourseRepository(database)
	enrolmentRepo := db.NewEnrolmentRepository(database)
	runRepo := db.NewRunRepository(database)
	uploadRepo := db.NewUploadRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Initialize queue producer and run lock
	producer := queue.NewProducer(redisClient, cfg)
	runLock := queue.NewRunLock(redisClient, cfg)

	// Initialize S3 storage for roster uploads
	s3Storage, err := storage.NewS3Storage(cfg.Storage.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	// Initialize notifier
	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.SMTP.Host != "" {
		notifier = notify.NewMailer(cfg.Notify)
	}

	// Initialize audit tap
	tap, err := stream.FromConfig(cfg.Stream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audit tap")
	}

	// Initialize metrics registry
	reg := metrics.NewRegistry()

	// Wire the reconciliation engine; the API only uses it for the manual
	// reprocess endpoint, which runs through the same classify-and-apply
	// path as the workers.
	ledger := reconcile.NewLedger(auditRepo, tap)
	classifier := reconcile.NewClassifier(auditRepo, courseRepo, learnerRepo, enrolmentRepo, cfg.Sync.CourseIgnoreList)
	applier := reconcile.NewApplier(learnerRepo, enrolmentRepo, ledger, notifier)
	aggregator := reconcile.NewAggregator(runRepo, auditRepo, notifier, reg, cfg.Sync)
	feedClient := feed.NewClient(cfg.ELM.Feed)
	engine := reconcile.NewService(feedClient, classifier, applier, aggregator, ledger, auditRepo, notifier, runLock, reg)

	// Initialize API handler
	handler := api.NewHandler(runRepo, auditRepo, uploadRepo, producer, engine, s3Storage, cfg)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	// Setup routes
	api.SetupRoutes(router, handler, reg)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown server
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
