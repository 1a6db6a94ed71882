package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/redis/go-redis/v9"
)

// Redis is a key-value backend; every key is stored under the configured prefix.
type Redis struct {
	redis  *redis.Client
	prefix string
}

func NewRedis(redisClient *redis.Client, cfg *config.Config) *Redis {
	return &Redis{redis: redisClient, prefix: cfg.Redis.KeyPrefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("Redis.Get start", slog.String("rqID", rqID), slog.String("key", key))

	res, err := r.redis.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			slog.Debug("Redis.Get key not found", slog.String("rqID", rqID), slog.String("key", key))
			return nil, ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return nil, err
	}

	slog.Debug("Redis.Get finished", slog.String("rqID", rqID), slog.String("key", key))

	return res, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("Redis.Set start", slog.String("rqID", rqID), slog.String("key", key))

	err := r.redis.Set(ctx, r.prefix+key, value, expiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	slog.Debug("Redis.Set completed", slog.String("rqID", rqID), slog.String("key", key))

	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := r.redis.Del(ctx, r.prefix+key).Err()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", key))
		return err
	}

	return nil
}
