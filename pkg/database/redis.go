package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/servicelens-inc/servicelens-engine/pkg/config"
)

// NewRedisClient creates a Redis client for the conversation state store
// and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
