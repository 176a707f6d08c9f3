package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`

	// Stream and Group name the Redis stream extraction jobs are queued on
	// and the consumer group workers read it with.
	Stream string        `env:"REDIS_JOB_STREAM, default=framegrab_jobs"`
	Group  string        `env:"REDIS_JOB_GROUP, default=framegrab_workers"`
	Block  time.Duration `env:"REDIS_JOB_BLOCK, default=5s"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	return &cfg, nil
}
