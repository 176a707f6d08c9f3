package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type FFmpegConfig struct {
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe"`
	LogLevel    string `env:"FFMPEG_LOGLEVEL, default=error"`
}

func NewFFmpegConfigFromEnv() (*FFmpegConfig, error) {
	var cfg FFmpegConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
