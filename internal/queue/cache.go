package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enterprise/fraudscore/configs"
	"github.com/enterprise/fraudscore/internal/models"
)

const (
	behaviorCacheTTL = 10 * time.Minute
	decisionCacheTTL = 1 * time.Hour
)

// CacheClient is a thin Redis-backed cache used to avoid re-reading a
// user's behavior profile or a transaction's decision on every request that
// only needs to display, not recompute, them.
type CacheClient struct {
	client *redis.Client
}

// NewCacheClient creates a cache client sharing Redis with the stream clients.
func NewCacheClient(cfg configs.RedisConfig) (*CacheClient, error) {
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

	return &CacheClient{client: client}, nil
}

// Set marshals value as JSON and stores it under key with the given TTL.
// Used by internal/analytics to cache aggregate reports.
func (c *CacheClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get reads a JSON value previously stored with Set into dest.
func (c *CacheClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func behaviorKey(userID string) string    { return "behavior:" + userID }
func decisionKey(transactionID string) string { return "decision:" + transactionID }

// CacheBehavior stores a user's behavior profile under behavior:<userId>.
func (c *CacheClient) CacheBehavior(ctx context.Context, b *models.UserBehavior) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, behaviorKey(b.UserID.String()), data, behaviorCacheTTL).Err()
}

// GetCachedBehavior reads a cached behavior profile, returning (nil, nil) on
// a cache miss.
func (c *CacheClient) GetCachedBehavior(ctx context.Context, userID string) (*models.UserBehavior, error) {
	data, err := c.client.Get(ctx, behaviorKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b models.UserBehavior
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// InvalidateBehavior drops a cached behavior profile. BehaviorAggregator.Update
// does not call it, so a cached profile stays until its TTL expires.
func (c *CacheClient) InvalidateBehavior(ctx context.Context, userID string) error {
	return c.client.Del(ctx, behaviorKey(userID)).Err()
}

// CacheDecision stores a terminal decision under decision:<transactionId>
// for fast lookup by review/analytics endpoints.
func (c *CacheClient) CacheDecision(ctx context.Context, transactionID string, dec models.Decision) error {
	data, err := json.Marshal(dec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, decisionKey(transactionID), data, decisionCacheTTL).Err()
}

// GetCachedDecision reads a cached decision, returning (nil, nil) on a
// cache miss.
func (c *CacheClient) GetCachedDecision(ctx context.Context, transactionID string) (*models.Decision, error) {
	data, err := c.client.Get(ctx, decisionKey(transactionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dec models.Decision
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, err
	}
	return &dec, nil
}

// Increment increments a general-purpose counter.
func (c *CacheClient) Increment(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

// Expire sets a TTL on an existing key.
func (c *CacheClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

// SetNX sets a value only if absent, used for distributed idempotency locks.
func (c *CacheClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, data, expiration).Result()
}

// LPush pushes a value onto the left of a list, used to keep a bounded
// recent-events feed for the compliance export pipeline.
func (c *CacheClient) LPush(ctx context.Context, key string, value interface{}) error {
	return c.client.LPush(ctx, key, value).Err()
}

// LTrim trims a list to the given index range.
func (c *CacheClient) LTrim(ctx context.Context, key string, start, stop int64) error {
	return c.client.LTrim(ctx, key, start, stop).Err()
}

// LRange reads a range of elements from a list.
func (c *CacheClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.client.LRange(ctx, key, start, stop).Result()
}

// Close closes the underlying Redis connection.
func (c *CacheClient) Close() error {
	return c.client.Close()
}
