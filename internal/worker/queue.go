package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glizzus/framegrab/internal/config"
	"github.com/glizzus/framegrab/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Delivery is a job read from the queue and awaiting Ack.
type Delivery struct {
	MessageID string
	Job       ExtractionJob
}

type JobQueue interface {
	Submit(ctx context.Context, jobs ...ExtractionJob) error
	// Receive blocks until jobs are available or the queue's block
	// duration passes, in which case it returns no deliveries.
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, messageIDs ...string) error
}

// RedisJobQueue is a Redis stream read through a consumer group.
type RedisJobQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	count    int64
}

var _ JobQueue = (*RedisJobQueue)(nil)

// NewRedisJobQueue creates the stream and consumer group if needed.
// The group starts at the beginning of the stream so jobs submitted before
// any worker started are not lost.
func NewRedisJobQueue(ctx context.Context, client *redis.Client, cfg config.RedisConfig, consumer string) (*RedisJobQueue, error) {
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", cfg.Group, err)
	}

	return &RedisJobQueue{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: consumer,
		block:    cfg.Block,
		count:    1,
	}, nil
}

func (q *RedisJobQueue) Submit(ctx context.Context, jobs ...ExtractionJob) error {
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, job := range jobs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: q.stream,
				Values: job.Values(),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to submit %d jobs: %w", len(jobs), err)
	}
	return nil
}

// Receive reads new jobs for this consumer. Entries that do not decode are
// acknowledged and dropped.
func (q *RedisJobQueue) Receive(ctx context.Context) ([]Delivery, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    q.count,
		Block:    q.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from %s: %w", q.stream, err)
	}

	var deliveries []Delivery
	var malformed []string
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job, err := ParseExtractionJob(msg.Values)
			if err != nil {
				slog.Warn("dropping malformed job", "messageID", msg.ID, "error", err)
				metrics.JobsProcessedTotal.WithLabelValues(metrics.OutcomeMalformed).Inc()
				malformed = append(malformed, msg.ID)
				continue
			}
			deliveries = append(deliveries, Delivery{MessageID: msg.ID, Job: job})
		}
	}

	if len(malformed) > 0 {
		if err := q.Ack(ctx, malformed...); err != nil {
			return nil, err
		}
	}
	return deliveries, nil
}

func (q *RedisJobQueue) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := q.client.XAck(ctx, q.stream, q.group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to ack %v: %w", messageIDs, err)
	}
	return nil
}
