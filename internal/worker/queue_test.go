package worker_test

import (
	"testing"
	"time"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/frame"
	"github.com/glizzus/framegrab/internal/worker"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := t.Context()

	redisContainer, err := tcredis.Run(ctx, "redis:7")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := redisContainer.Terminate(t.Context()); err != nil {
			t.Errorf("failed to terminate redis container: %v", err)
		}
	})

	connStr, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisJobQueue(t *testing.T) {
	ctx := t.Context()
	client := newTestRedis(t)
	cfg := config.RedisConfig{Stream: "test_jobs", Group: "test_workers", Block: 200 * time.Millisecond}

	queue, err := worker.NewRedisJobQueue(ctx, client, cfg, "consumer-1")
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	// A second worker joining the same group must not fail.
	if _, err := worker.NewRedisJobQueue(ctx, client, cfg, "consumer-2"); err != nil {
		t.Fatalf("failed to join existing group: %v", err)
	}

	requestedAt := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	jobs := []worker.ExtractionJob{
		{ID: "a", SourceKey: "sources/a/x.mp4", OutputPrefix: "frames/a/", Format: frame.PNG, PixelFormat: frame.RGB24, FPS: 1, RequestedAt: requestedAt},
		{ID: "b", SourceKey: "sources/b/y.mp4", OutputPrefix: "frames/b/", Format: frame.PPM, PixelFormat: frame.RGBA, MaxFrames: 5, RequestedAt: requestedAt},
	}
	if err := queue.Submit(ctx, jobs[0]); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: cfg.Stream,
		Values: map[string]any{"id": "broken"},
	}).Err(); err != nil {
		t.Fatalf("failed to add malformed entry: %v", err)
	}
	if err := queue.Submit(ctx, jobs[1]); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}

	var got []worker.ExtractionJob
	var ids []string
	for range 3 {
		deliveries, err := queue.Receive(ctx)
		if err != nil {
			t.Fatalf("failed to receive: %v", err)
		}
		for _, d := range deliveries {
			got = append(got, d.Job)
			ids = append(ids, d.MessageID)
		}
	}
	if diff := cmp.Diff(jobs, got); diff != "" {
		t.Errorf("received jobs mismatch (-want +got):\n%s", diff)
	}

	deliveries, err := queue.Receive(ctx)
	if err != nil {
		t.Fatalf("failed to receive from empty stream: %v", err)
	}
	if len(deliveries) != 0 {
		t.Errorf("expected no deliveries, got %d", len(deliveries))
	}

	pending, err := client.XPending(ctx, cfg.Stream, cfg.Group).Result()
	if err != nil {
		t.Fatalf("failed to read pending: %v", err)
	}
	if pending.Count != 2 {
		t.Errorf("expected the 2 valid jobs pending, got %d", pending.Count)
	}

	if err := queue.Ack(ctx, ids...); err != nil {
		t.Fatalf("failed to ack: %v", err)
	}
	pending, err = client.XPending(ctx, cfg.Stream, cfg.Group).Result()
	if err != nil {
		t.Fatalf("failed to read pending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("expected nothing pending after ack, got %d", pending.Count)
	}
}
