package queue

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
)

// RunLock keeps scheduled, manual and bulk cycles from overlapping across
// processes. SET NX with a TTL: a crashed holder's lock expires on its
// own instead of wedging the schedule. The holder string identifies who
// owns the lock so Release never deletes someone else's.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	holder string
	log    zerolog.Logger
}

func NewRunLock(redisClient *RedisClient, cfg *config.Config) *RunLock {
	hostname, _ := os.Hostname()
	return &RunLock{
		client: redisClient.Client(),
		key:    cfg.Redis.RunLockKey,
		ttl:    cfg.Redis.RunLockTTL,
		holder: fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()),
		log:    logger.For("runlock"),
	}
}

func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set run lock: %w", err)
	}
	if ok {
		l.log.Debug().Str("holder", l.holder).Msg("Run lock acquired")
	}
	return ok, nil
}

func (l *RunLock) Release(ctx context.Context) error {
	current, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil // Expired, nothing to release
	}
	if err != nil {
		return fmt.Errorf("read run lock: %w", err)
	}
	if current != l.holder {
		l.log.Warn().Str("holder", current).Msg("Run lock held by someone else, leaving it")
		return nil
	}
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("delete run lock: %w", err)
	}
	return nil
}
