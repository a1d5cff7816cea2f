package queue

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

type Producer struct {
	client *redis.Client
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

func (p *Producer) EnqueueRunRequest(ctx context.Context, req model.RunRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.RunRequestQueue, data).Err()
}

func (p *Producer) EnqueueBulkJob(ctx context.Context, job model.BulkJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.BulkQueue, data).Err()
}

func (p *Producer) EnqueueCompletion(ctx context.Context, job model.CompletionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.CompletionQueue, data).Err()
}
