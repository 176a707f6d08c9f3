package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type WorkerConfig struct {
	TempDir        string        `env:"WORKER_TEMP_DIR, default=/tmp/framegrab"`
	EncodeWorkers  int           `env:"WORKER_ENCODE_WORKERS, default=4"`
	SweepCron      string        `env:"WORKER_SWEEP_CRON, default=0 * * * *"`
	Retention      time.Duration `env:"WORKER_RETENTION, default=168h"`
	MetricsAddr    string        `env:"WORKER_METRICS_ADDR, default=:9102"`
	SourcePrefix   string        `env:"WORKER_SOURCE_PREFIX, default=sources/"`
	FramePrefix    string        `env:"WORKER_FRAME_PREFIX, default=frames/"`
	DefaultFormat  string        `env:"WORKER_DEFAULT_FORMAT, default=png"`
	DefaultFPS     float64       `env:"WORKER_DEFAULT_FPS, default=1"`
	MaxFramesLimit int           `env:"WORKER_MAX_FRAMES_LIMIT, default=3600"`
}

func NewWorkerConfigFromEnv() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.EncodeWorkers < 1 {
		return nil, fmt.Errorf("WORKER_ENCODE_WORKERS must be at least 1, got %d", cfg.EncodeWorkers)
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("WORKER_RETENTION must be positive, got %s", cfg.Retention)
	}

	return &cfg, nil
}
