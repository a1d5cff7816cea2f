package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

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
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/worker"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting ingestion worker")

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

	runLock := queue.NewRunLock(redisClient, cfg)

	// Initialize S3 storage
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

	// Initialize metrics registry, expose /metrics and /healthz
	reg := metrics.NewRegistry()
	go func() {
		http.Handle("/metrics", reg.Handler())
		http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if err := http.ListenAndServe(cfg.Workers.MetricsAddr, nil); err != nil {
			log.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()

	// Wire the reconciliation engine; roster rows run through the same
	// classify-and-apply path as feed records.
	ledger := reconcile.NewLedger(auditRepo, tap)
	classifier := reconcile.NewClassifier(auditRepo, courseRepo, learnerRepo, enrolmentRepo, cfg.Sync.CourseIgnoreList)
	applier := reconcile.NewApplier(learnerRepo, enrolmentRepo, ledger, notifier)
	aggregator := reconcile.NewAggregator(runRepo, auditRepo, notifier, reg, cfg.Sync)
	feedClient := feed.NewClient(cfg.ELM.Feed)
	service := reconcile.NewService(feedClient, classifier, applier, aggregator, ledger, auditRepo, notifier, runLock, reg)

	// Create ingestion worker
	ingestionWorker := worker.NewIngestionWorker(cfg, uploadRepo, s3Storage, service, redisClient, reg)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := ingestionWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Ingestion worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down ingestion worker...")

	// Cancel context to stop worker
	cancel()
	ingestionWorker.Stop()

	log.Info().Msg("Ingestion worker exited")
}
