package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/datalayer"
	"github.com/jackc/pgx/v5/pgxpool"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	postgresOnce      sync.Once
	postgresContainer *postgres.PostgresContainer
	postgresConnStr   string
	postgresErr       error

	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisConfig    config.RedisConfig
	redisErr       error

	minioOnce      sync.Once
	minioContainer *tcminio.MinioContainer
	minioConfig    config.MinioConfig
	minioErr       error

	wg sync.WaitGroup
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a migrated Postgres container.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	postgresOnce.Do(func() {
		ctx := context.Background()
		postgresContainer, postgresErr = postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("framegrab"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if postgresErr != nil {
			return
		}
		postgresConnStr, postgresErr = postgresContainer.ConnectionString(ctx)
		if postgresErr != nil {
			return
		}

		pool, err := pgxpool.New(ctx, postgresConnStr)
		if err != nil {
			postgresErr = err
			return
		}
		defer pool.Close()

		postgresErr = datalayer.MigratePostgres(pool)
	})

	if postgresErr != nil {
		t.Fatalf("failed to start postgres container: %v", postgresErr)
	}
	wg.Add(1)
	t.Cleanup(wg.Done)

	pool, err := pgxpool.New(t.Context(), postgresConnStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// UseRedis provisions or reuses a Redis container. Each test should use its
// own stream name.
func UseRedis(t *testing.T) config.RedisConfig {
	t.Helper()

	redisOnce.Do(func() {
		ctx := context.Background()
		redisContainer, redisErr = tcredis.Run(ctx, "redis:7")
		if redisErr != nil {
			return
		}
		endpoint, err := redisContainer.Endpoint(ctx, "")
		if err != nil {
			redisErr = err
			return
		}
		redisConfig = config.RedisConfig{Addr: endpoint}
	})

	if redisErr != nil {
		t.Fatalf("failed to start redis container: %v", redisErr)
	}
	wg.Add(1)
	t.Cleanup(wg.Done)
	return redisConfig
}

// UseMinio provisions or reuses a MinIO container. Each test should use its
// own bucket.
func UseMinio(t *testing.T) config.MinioConfig {
	t.Helper()

	minioOnce.Do(func() {
		ctx := context.Background()
		minioContainer, minioErr = tcminio.Run(
			ctx,
			"minio/minio:RELEASE.2024-01-16T16-07-38Z",
			tcminio.WithUsername("minioadmin"),
			tcminio.WithPassword("minioadmin"),
		)
		if minioErr != nil {
			return
		}
		endpoint, err := minioContainer.ConnectionString(ctx)
		if err != nil {
			minioErr = err
			return
		}
		minioConfig = config.MinioConfig{
			Endpoint: endpoint,
			Username: minioContainer.Username,
			Password: minioContainer.Password,
		}
	})

	if minioErr != nil {
		t.Fatalf("failed to start minio container: %v", minioErr)
	}
	wg.Add(1)
	t.Cleanup(wg.Done)
	return minioConfig
}

// TerminateContainersForE2E stops every container once all tests using
// them have finished.
func TerminateContainersForE2E() {
	wg.Wait()
	ctx := context.Background()
	if postgresContainer != nil {
		if err := postgresContainer.Terminate(ctx); err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
	if redisContainer != nil {
		if err := redisContainer.Terminate(ctx); err != nil {
			fmt.Printf("failed to terminate redis container: %v", err)
		}
	}
	if minioContainer != nil {
		if err := minioContainer.Terminate(ctx); err != nil {
			fmt.Printf("failed to terminate minio container: %v", err)
		}
	}
}
