package datalayer

import (
	"context"
	"fmt"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
