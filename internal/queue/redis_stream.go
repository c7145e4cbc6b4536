// Package queue is the cross-process fan-out layer: a Redis Streams audit
// trail for scored transactions, a Redis Streams job queue for asynchronous
// behavior re-aggregation, and a Redis-backed cache for behavior profiles
// and decisions.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraudscore/configs"
)

// AuditStreamClient publishes a durable audit trail of scoring decisions to
// the fraud-scoring stream and reads it back for export.
type AuditStreamClient struct {
	client           *redis.Client
	streamName       string
	consumerGroup    string
	deadLetterStream string
	maxRetries       int
}

// NewAuditStreamClient creates a client against the fraud-scoring stream.
func NewAuditStreamClient(cfg configs.RedisConfig) (*AuditStreamClient, error) {
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

	rsc := &AuditStreamClient{
		client:           client,
		streamName:       cfg.StreamName,
		consumerGroup:    cfg.ConsumerGroup,
		deadLetterStream: "fraud-scoring-dlq",
		maxRetries:       cfg.MaxRetries,
	}

	if err := rsc.createConsumerGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("queue: consumer group may already exist")
	}

	log.Info().Str("stream", cfg.StreamName).Msg("queue: audit stream client initialized")
	return rsc, nil
}

func (r *AuditStreamClient) createConsumerGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.streamName, r.consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

// Publish appends a scored-transaction event to the audit stream.
func (r *AuditStreamClient) Publish(ctx context.Context, event *TransactionScoredEvent) (string, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	msgID, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamName,
		Values: map[string]interface{}{"data": string(eventJSON)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("message_id", msgID).Str("transaction_id", event.TransactionID).Msg("queue: audit event published")
	return msgID, nil
}

// Consume reads pending or new audit events for compliance export.
func (r *AuditStreamClient) Consume(ctx context.Context, consumerName string, count int64, blockDuration time.Duration) ([]AuditMessage, error) {
	pendingMessages, err := r.claimPending(ctx, consumerName, count)
	if err != nil {
		log.Warn().Err(err).Msg("queue: failed to claim pending audit messages")
	}
	if len(pendingMessages) > 0 {
		return pendingMessages, nil
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.consumerGroup,
		Consumer: consumerName,
		Streams:  []string{r.streamName, ">"},
		Count:    count,
		Block:    blockDuration,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []AuditMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			event, err := parseScoredEvent(msg)
			if err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("queue: failed to parse audit message")
				continue
			}
			messages = append(messages, AuditMessage{ID: msg.ID, Event: event})
		}
	}
	return messages, nil
}

func (r *AuditStreamClient) claimPending(ctx context.Context, consumerName string, count int64) ([]AuditMessage, error) {
	minIdleTime := 30 * time.Second

	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.streamName,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	var messageIDs []string
	for _, p := range pending {
		if p.Idle >= minIdleTime {
			messageIDs = append(messageIDs, p.ID)
		}
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.streamName,
		Group:    r.consumerGroup,
		Consumer: consumerName,
		MinIdle:  minIdleTime,
		Messages: messageIDs,
	}).Result()
	if err != nil {
		return nil, err
	}

	var messages []AuditMessage
	for _, msg := range claimed {
		event, err := parseScoredEvent(msg)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.ID).Msg("queue: failed to parse claimed audit message")
			continue
		}
		messages = append(messages, AuditMessage{ID: msg.ID, Event: event})
	}
	return messages, nil
}

func parseScoredEvent(msg redis.XMessage) (*TransactionScoredEvent, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format")
	}
	var event TransactionScoredEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// Acknowledge marks an audit message as processed.
func (r *AuditStreamClient) Acknowledge(ctx context.Context, messageID string) error {
	if _, err := r.client.XAck(ctx, r.streamName, r.consumerGroup, messageID).Result(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// SendToDeadLetter routes an event that failed export after exhausting retries.
func (r *AuditStreamClient) SendToDeadLetter(ctx context.Context, event *TransactionScoredEvent, cause error) error {
	eventJSON, _ := json.Marshal(event)
	_, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.deadLetterStream,
		Values: map[string]interface{}{"data": string(eventJSON), "error": cause.Error()},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to send to dead letter: %w", err)
	}
	log.Warn().Str("transaction_id", event.TransactionID).Err(cause).Msg("queue: event sent to dead letter stream")
	return nil
}

// Close closes the underlying Redis connection.
func (r *AuditStreamClient) Close() error {
	return r.client.Close()
}

// AuditMessage pairs a stream message ID with its decoded event.
type AuditMessage struct {
	ID    string
	Event *TransactionScoredEvent
}
