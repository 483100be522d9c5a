package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "jobscout:task:"
	defaultRedisTTL = 7 * 24 * time.Hour
	maxTxRetries    = 100
)

// RedisStore keeps one JSON value per task and merges updates inside
// WATCH/MULTI transactions, for deployments spanning several hosts.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps an existing client. ttl <= 0 selects seven days.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// OpenRedis parses redisURL, verifies connectivity and returns a store.
func OpenRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, t Task) error {
	if t.ID == "" {
		return fmt.Errorf("create task: empty id")
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+t.ID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	if !ok {
		return fmt.Errorf("create task %s: %w", t.ID, ErrExists)
	}
	return nil
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, id string, p Patch) (Task, error) {
	key := keyPrefix + id
	var out Task
	txf := func(tx *redis.Tx) error {
		current, err := decode(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		out = apply(current, p, s.now())
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}
	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Task{}, err
		}
		return out, nil
	}
	return Task{}, fmt.Errorf("update task %s: too much contention", id)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (Task, error) {
	return decode(s.client.Get(ctx, keyPrefix+id))
}

func decode(cmd *redis.StringCmd) (Task, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("read task: %w", err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}
