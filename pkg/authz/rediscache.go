package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisDecisionCache is a Redis-backed DecisionCache shared across
// instances, so a role change invalidated on one replica is invalidated
// everywhere.
type RedisDecisionCache struct {
	client *redis.Client
	prefix string
}

// NewRedisDecisionCache creates a Redis decision cache. The prefix
// namespaces keys when the Redis instance is shared; empty defaults to
// "platemill".
func NewRedisDecisionCache(client *redis.Client, prefix string) *RedisDecisionCache {
	if prefix == "" {
		prefix = "platemill"
	}
	return &RedisDecisionCache{client: client, prefix: prefix}
}

func (r *RedisDecisionCache) redisKey(key string) string {
	return r.prefix + ":" + key
}

// Get returns the cached decision, or nil when absent.
func (r *RedisDecisionCache) Get(ctx context.Context, key string) (*Decision, error) {
	payload, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return nil, fmt.Errorf("decode cached decision: %w", err)
	}
	return &decision, nil
}

// Set stores a decision with the given TTL.
func (r *RedisDecisionCache) Set(ctx context.Context, key string, decision Decision, ttl time.Duration) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	if err := r.client.Set(ctx, r.redisKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidateUser scans for the user's keys and deletes them.
func (r *RedisDecisionCache) InvalidateUser(ctx context.Context, userID int64) error {
	pattern := r.redisKey(userKeyPrefix(userID)) + "*"
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
