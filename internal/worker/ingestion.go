package worker

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/bulk"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/metrics"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/queue"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/reconcile"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/storage"
)

// IngestionWorker turns uploaded roster files into processed enrolment
// batches: download from object storage, parse, validate, then run every
// row through the same classify-and-apply pipeline the feed uses. The
// upload row tracks the outcome; a roster that fails before processing
// produces zero ledger rows.
type IngestionWorker struct {
	cfg        *config.Config
	uploads    db.UploadRepository
	storage    storage.Storage
	parser     bulk.ParsingStrategy
	service    *reconcile.Service
	consumer   *queue.Consumer
	workerPool *WorkerPool
	reg        *metrics.Registry
	log        zerolog.Logger
}

func NewIngestionWorker(
	cfg *config.Config,
	uploads db.UploadRepository,
	store storage.Storage,
	service *reconcile.Service,
	redisClient *queue.RedisClient,
	reg *metrics.Registry,
) *IngestionWorker {
	return &IngestionWorker{
		cfg:        cfg,
		uploads:    uploads,
		storage:    store,
		parser:     bulk.NewExcelStrategy(),
		service:    service,
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool(cfg.Workers.Ingestion.Count),
		reg:        reg,
		log:        logger.For("ingestion-worker"),
	}
}

func (w *IngestionWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting ingestion worker")

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeBulkQueue(ctx, w.handleMessage)
}

func (w *IngestionWorker) Stop() {
	w.log.Info().Msg("Stopping ingestion worker")
	w.workerPool.Stop()
}

func (w *IngestionWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.BulkJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal bulk job")
		return err
	}

	w.log.Info().
		Str("upload_id", job.UploadID).
		Str("s3_key", job.S3Key).
		Msg("Processing bulk job")

	w.workerPool.Submit(func(ctx context.Context) error {
		return w.processRoster(ctx, job)
	})

	return nil
}

func (w *IngestionWorker) processRoster(ctx context.Context, job model.BulkJob) error {
	log := w.log.With().Str("upload_id", job.UploadID).Logger()

	log.Debug().Msg("Downloading roster from storage")
	reader, err := w.storage.Download(ctx, job.S3Key)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download roster")
		w.markFailed(ctx, job.UploadID, err)
		return err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read roster data")
		w.markFailed(ctx, job.UploadID, err)
		return err
	}

	log.Debug().Msg("Parsing roster")
	records, err := w.parser.Parse(ctx, data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse roster")
		w.markFailed(ctx, job.UploadID, err)
		return err
	}

	log.Debug().Int("rows", len(records)).Msg("Validating roster rows")
	if err := w.parser.Validate(ctx, records); err != nil {
		log.Error().Err(err).Msg("Roster validation failed")
		w.markFailed(ctx, job.UploadID, err)
		return err
	}

	run, err := w.service.ProcessRoster(ctx, records, job.S3Key)
	if err != nil {
		log.Error().Err(err).Msg("Roster processing failed")
		w.markFailed(ctx, job.UploadID, err)
		return err
	}

	if err := w.uploads.MarkProcessed(ctx, job.UploadID, run.ID); err != nil {
		log.Error().Err(err).Msg("Failed to mark upload processed")
		return err
	}

	w.reg.BulkRowsTotal.WithLabelValues(string(model.RecordOutcomeEnrolled)).Add(float64(run.Enrolled))
	w.reg.BulkRowsTotal.WithLabelValues(string(model.RecordOutcomeSuspended)).Add(float64(run.Suspended))
	w.reg.BulkRowsTotal.WithLabelValues(string(model.RecordOutcomeErrored)).Add(float64(run.Errored))
	w.reg.BulkRowsTotal.WithLabelValues(string(model.RecordOutcomeSkipped)).Add(float64(run.Skipped))

	log.Info().
		Str("run_id", run.ID).
		Int("rows", len(records)).
		Int("enrolled", run.Enrolled).
		Int("suspended", run.Suspended).
		Int("errored", run.Errored).
		Int("skipped", run.Skipped).
		Msg("Roster processed")
	return nil
}

func (w *IngestionWorker) markFailed(ctx context.Context, uploadID string, cause error) {
	if err := w.uploads.MarkFailed(ctx, uploadID, cause.Error()); err != nil {
		w.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to mark upload failed")
	}
}
