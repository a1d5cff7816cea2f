package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/queue"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/reconcile"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// ReconcileWorker drives the reconciliation cycle from two sources: an
// interval ticker for scheduled runs, and the run-request queue for
// manual triggers. Scheduled runs honour the service window; manual
// triggers bypass it, because an operator asking for a run knows why.
// Overlap between the two is handled by the cycle lock, not here.
type ReconcileWorker struct {
	cfg      *config.Config
	service  *reconcile.Service
	consumer *queue.Consumer
	ticker   *time.Ticker
	log      zerolog.Logger
}

func NewReconcileWorker(
	cfg *config.Config,
	service *reconcile.Service,
	redisClient *queue.RedisClient,
) *ReconcileWorker {
	return &ReconcileWorker{
		cfg:      cfg,
		service:  service,
		consumer: queue.NewConsumer(redisClient, cfg),
		log:      logger.For("reconcile-worker"),
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.Sync.Interval).Msg("Starting reconcile worker")

	if w.cfg.Sync.RunOnStart {
		w.log.Info().Msg("Running initial cycle on startup")
		w.runScheduled(ctx)
	}

	w.ticker = time.NewTicker(w.cfg.Sync.Interval)
	go w.scheduleLoop(ctx)

	// Block on the manual-trigger queue until the context ends.
	return w.consumer.ConsumeRunRequests(ctx, w.handleRunRequest)
}

func (w *ReconcileWorker) Stop() {
	w.log.Info().Msg("Stopping reconcile worker")
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *ReconcileWorker) scheduleLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ticker.C:
			w.runScheduled(ctx)
		}
	}
}

func (w *ReconcileWorker) runScheduled(ctx context.Context) {
	within, err := reconcile.WithinServiceWindow(w.cfg.Sync.ServiceWindow, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("Service window check failed")
		return
	}
	if !within {
		w.log.Debug().Msg("Outside service window, skipping scheduled cycle")
		return
	}

	w.runCycle(ctx, model.RunTriggerScheduled)
}

func (w *ReconcileWorker) handleRunRequest(ctx context.Context, data []byte) error {
	var req model.RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal run request")
		return err
	}

	w.log.Info().
		Str("requested_by", req.RequestedBy).
		Str("reason", req.Reason).
		Msg("Processing manual run request")

	w.runCycle(ctx, model.RunTriggerManual)
	return nil
}

func (w *ReconcileWorker) runCycle(ctx context.Context, trigger model.RunTrigger) {
	run, err := w.service.RunCycle(ctx, trigger)
	if errors.Is(err, apperrors.ErrRunLocked) {
		return
	}
	if err != nil {
		w.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Cycle failed")
		return
	}

	w.log.Info().
		Str("run_id", run.ID).
		Str("trigger", string(trigger)).
		Int("fetched", run.Fetched).
		Int("enrolled", run.Enrolled).
		Int("suspended", run.Suspended).
		Int("errored", run.Errored).
		Int("skipped", run.Skipped).
		Msg("Cycle completed")
}
