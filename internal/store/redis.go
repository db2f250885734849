package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the shared TTL backend for multi-process deployments. Values are
// stored as JSON strings, the per-token index as a sorted set scored by
// event timestamp.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, url, password string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) AddToTokenIndex(ctx context.Context, token string, ts time.Time, key string, ttl time.Duration) error {
	indexKey := "events_by_token:" + token

	pipe := r.client.Pipeline()
	// Scores are event timestamps, so members older than one ttl are
	// already expired and can be pruned on every add.
	pipe.ZRemRangeByScore(ctx, indexKey, "-inf", strconv.FormatInt(indexCutoff(time.Now(), ttl), 10))
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(ts.Unix()), Member: key})
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index event for %s: %w", token, err)
	}
	return nil
}

// indexCutoff returns the newest event timestamp (Unix seconds) whose index
// entry, written with the given ttl, has already expired.
func indexCutoff(now time.Time, ttl time.Duration) int64 {
	return now.Add(-ttl).Unix()
}

func (r *Redis) TokenIndexKeys(ctx context.Context, token string) ([]string, error) {
	keys, err := r.client.ZRange(ctx, "events_by_token:"+token, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read token index for %s: %w", token, err)
	}
	return keys, nil
}
