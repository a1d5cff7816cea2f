package worker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/completion"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/metrics"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/queue"
)

// CompletionWorker drains the completion queue and pushes each event to the
// ELM callback endpoint. Jobs are processed inline on the consumer goroutine
// so a failed push bounces the message to the dead-letter queue instead of
// vanishing inside a pool.
type CompletionWorker struct {
	cfg      *config.Config
	service  *completion.Service
	consumer *queue.Consumer
	reg      *metrics.Registry
	log      zerolog.Logger
}

func NewCompletionWorker(
	cfg *config.Config,
	service *completion.Service,
	redisClient *queue.RedisClient,
	reg *metrics.Registry,
) *CompletionWorker {
	return &CompletionWorker{
		cfg:      cfg,
		service:  service,
		consumer: queue.NewConsumer(redisClient, cfg),
		reg:      reg,
		log:      logger.For("completion-worker"),
	}
}

// Start runs cfg.Workers.Completion.Count consumer goroutines against the
// completion queue and blocks until the context is cancelled.
func (w *CompletionWorker) Start(ctx context.Context) error {
	count := w.cfg.Workers.Completion.Count
	w.log.Info().Int("consumers", count).Msg("Starting completion worker")

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := w.consumer.ConsumeCompletionQueue(ctx, w.handleMessage); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Int("consumer", id).Msg("Completion consumer stopped")
			}
		}(i)
	}
	wg.Wait()

	return ctx.Err()
}

func (w *CompletionWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.CompletionJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal completion job")
		return err
	}

	if err := w.service.ProcessJob(ctx, job); err != nil {
		w.reg.CompletionsTotal.WithLabelValues("error").Inc()
		return err
	}

	w.reg.CompletionsTotal.WithLabelValues("success").Inc()
	return nil
}
