package redisdb

import (
	"context"

	"github.com/davifernan/bayrol-pool-api/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewClient creates a Redis client from config.
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
