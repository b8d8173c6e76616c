package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mrcode/glucose-calculator/internal/models"
)

// KeyValue is the part of the redis client the store uses
type KeyValue interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore mirrors the latest reading into redis so several processes share it
type RedisStore struct {
	client KeyValue
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient creates a go-redis client and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore stores the reading under prefix:latest_reading. A ttl of zero keeps it forever.
func NewRedisStore(client KeyValue, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	key := "latest_reading"
	if prefix != "" {
		key = prefix + ":" + key
	}
	return &RedisStore{client: client, key: key, ttl: ttl, logger: logger}
}

// Save writes the reading
func (s *RedisStore) Save(ctx context.Context, r models.SensorReading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving reading: %w", err)
	}
	return nil
}

// Load reads the stored reading; ok is false when none is stored
func (s *RedisStore) Load(ctx context.Context) (r models.SensorReading, ok bool, err error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.SensorReading{}, false, nil
	}
	if err != nil {
		return models.SensorReading{}, false, fmt.Errorf("loading reading: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return models.SensorReading{}, false, fmt.Errorf("decoding reading: %w", err)
	}
	return r, true, nil
}

// Attach hydrates latest from redis and mirrors every later update back
func (s *RedisStore) Attach(ctx context.Context, latest *Latest) error {
	r, ok, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		latest.Set(r)
	}

	latest.OnUpdate(func(r models.SensorReading) {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.Save(saveCtx, r); err != nil {
			s.logger.Warn("mirroring reading to redis", "error", err)
		}
	})
	return nil
}
