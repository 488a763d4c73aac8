package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/accessflow/core"
)

const (
	// DefaultBlockedKey is the sorted set holding blocked identities.
	DefaultBlockedKey = "accessflow:blocked"
	// DefaultBlockedChannel is the pub/sub channel for block events.
	DefaultBlockedChannel = "accessflow:blocked:events"
)

// BlockEvent is published whenever an identity becomes blocked.
type BlockEvent struct {
	Identity  core.Identity `json:"identity"`
	BlockedAt time.Time     `json:"blocked_at"`
}

// RedisBlockLog mirrors block events into Redis for operators and other
// services. It is write-only from the limiter's point of view: admission
// decisions never read it back.
type RedisBlockLog struct {
	client  *redis.Client
	key     string
	channel string
}

// RedisConfig for creating a Redis block log
type RedisConfig struct {
	Addr     string `yaml:"addr"`               // Redis address (e.g., "localhost:6379")
	Password string `yaml:"password,omitempty"` // Redis password (empty for no auth)
	DB       int    `yaml:"db,omitempty"`       // Redis database number
	Key      string `yaml:"key,omitempty"`      // Sorted set key (default: accessflow:blocked)
	Channel  string `yaml:"channel,omitempty"`  // Pub/sub channel (default: accessflow:blocked:events)
}

// NewRedisBlockLog creates a new Redis-backed block log
func NewRedisBlockLog(config RedisConfig) (*RedisBlockLog, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", core.ErrInvalidConfig)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	key := config.Key
	if key == "" {
		key = DefaultBlockedKey
	}
	channel := config.Channel
	if channel == "" {
		channel = DefaultBlockedChannel
	}

	return &RedisBlockLog{
		client:  client,
		key:     key,
		channel: channel,
	}, nil
}

// IdentityBlocked records the block and publishes a BlockEvent.
func (l *RedisBlockLog) IdentityBlocked(ctx context.Context, id core.Identity, at time.Time) error {
	payload, err := json.Marshal(BlockEvent{Identity: id, BlockedAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("encode block event: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.ZAddNX(ctx, l.key, redis.Z{Score: float64(at.Unix()), Member: string(id)})
	pipe.Publish(ctx, l.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record block for %s: %w", id, err)
	}
	return nil
}

// Blocked returns every recorded identity, oldest block first.
func (l *RedisBlockLog) Blocked(ctx context.Context) ([]core.Identity, error) {
	members, err := l.client.ZRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list blocked identities: %w", err)
	}

	ids := make([]core.Identity, len(members))
	for i, m := range members {
		ids[i] = core.Identity(m)
	}
	return ids, nil
}

// Subscribe returns a subscription to block events. The caller closes it.
func (l *RedisBlockLog) Subscribe(ctx context.Context) *redis.PubSub {
	return l.client.Subscribe(ctx, l.channel)
}

// Clear removes the recorded block set
func (l *RedisBlockLog) Clear(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

// Ping checks if Redis connection is alive
func (l *RedisBlockLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisBlockLog) Close() error {
	return l.client.Close()
}
