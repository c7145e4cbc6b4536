package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/configs"
)

// AggregationQueue publishes behavior re-aggregation jobs to a Redis stream.
// It satisfies coordinator.AggregationScheduler, making it a drop-in
// cross-process replacement for coordinator.ChannelDispatcher when the
// Coordinator and the worker that runs BehaviorAggregator.Update live in
// separate processes.
type AggregationQueue struct {
	client        *redis.Client
	streamName    string
	consumerGroup string
}

// NewAggregationQueue creates a client against the behavior-reaggregation stream.
func NewAggregationQueue(cfg configs.RedisConfig) (*AggregationQueue, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := &AggregationQueue{
		client:        client,
		streamName:    cfg.AggregationStreamName,
		consumerGroup: cfg.ConsumerGroup,
	}

	if err := client.XGroupCreateMkStream(ctx, q.streamName, q.consumerGroup, "0").Err(); err != nil &&
		err.Error() != "BUSYGROUP Consumer Group name already exists" {
		log.Warn().Err(err).Msg("queue: aggregation consumer group may already exist")
	}

	return q, nil
}

// Schedule publishes userID for asynchronous re-aggregation. It never
// blocks on the caller's behalf; a publish failure is logged, not
// propagated, matching the in-process ChannelDispatcher's drop-and-retry
// behavior since the next transaction's scheduling attempt converges the
// profile regardless.
func (q *AggregationQueue) Schedule(userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job := AggregationJob{UserID: userID.String(), RequestedAt: time.Now()}
	data, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Msg("queue: failed to marshal aggregation job")
		return
	}

	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamName,
		Values: map[string]interface{}{"data": string(data)},
	}).Result(); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("queue: failed to publish aggregation job")
	}
}

// Consume reads aggregation jobs for a worker pool to process.
func (q *AggregationQueue) Consume(ctx context.Context, consumerName string, count int64, blockDuration time.Duration) ([]AggregationMessage, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.consumerGroup,
		Consumer: consumerName,
		Streams:  []string{q.streamName, ">"},
		Count:    count,
		Block:    blockDuration,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read aggregation stream: %w", err)
	}

	var messages []AggregationMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var job AggregationJob
			if err := json.Unmarshal([]byte(data), &job); err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("queue: failed to unmarshal aggregation job")
				continue
			}
			messages = append(messages, AggregationMessage{ID: msg.ID, Job: job})
		}
	}
	return messages, nil
}

// Acknowledge marks an aggregation job as processed.
func (q *AggregationQueue) Acknowledge(ctx context.Context, messageID string) error {
	return q.client.XAck(ctx, q.streamName, q.consumerGroup, messageID).Err()
}

// Close closes the underlying Redis connection.
func (q *AggregationQueue) Close() error {
	return q.client.Close()
}

// AggregationMessage pairs a stream message ID with its decoded job.
type AggregationMessage struct {
	ID  string
	Job AggregationJob
}
