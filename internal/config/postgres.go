package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sethvargo/go-envconfig"
)

type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST, required"`
	Port     string `env:"POSTGRES_PORT, default=5432"`
	Username string `env:"POSTGRES_USERNAME, required"`
	Password string `env:"POSTGRES_PASSWORD, required"`
	Database string `env:"POSTGRES_DATABASE, default=framegrab"`
	SSLMode  string `env:"POSTGRES_SSLMODE, default=disable"`
	MaxConns int    `env:"POSTGRES_MAX_CONNS, default=4"`
}

func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	var cfg PostgresConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DSN renders the config as a postgres:// connection string.
// Credentials are escaped so passwords may contain reserved characters.
func (c *PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.MaxConns > 0 {
		q.Set("pool_max_conns", fmt.Sprint(c.MaxConns))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
