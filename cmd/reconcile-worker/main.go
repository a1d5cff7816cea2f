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

	log.Info().Str("version", cfg.App.Version).Msg("Starting reconcile worker")

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

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	runLock := queue.NewRunLock(redisClient, cfg)

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

	// Wire the reconciliation engine
	ledger := reconcile.NewLedger(auditRepo, tap)
	classifier := reconcile.NewClassifier(auditRepo, courseRepo, learnerRepo, enrolmentRepo, cfg.Sync.CourseIgnoreList)
	applier := reconcile.NewApplier(learnerRepo, enrolmentRepo, ledger, notifier)
	aggregator := reconcile.NewAggregator(runRepo, auditRepo, notifier, reg, cfg.Sync)
	feedClient := feed.NewClient(cfg.ELM.Feed)
	service := reconcile.NewService(feedClient, classifier, applier, aggregator, ledger, auditRepo, notifier, runLock, reg)

	// Create reconcile worker
	reconcileWorker := worker.NewReconcileWorker(cfg, service, redisClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := reconcileWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Reconcile worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down reconcile worker...")

	// Cancel context to stop worker
	cancel()
	reconcileWorker.Stop()

	log.Info().Msg("Reconcile worker exited")
}
