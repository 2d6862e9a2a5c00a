package enforce

import (
	"context"
	"fmt"
	"time"

	"netsentry/internal/config"
	"netsentry/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisEnforcer publishes block directives through Redis: the source lands in
// a blocklist set read by edge firewalls, and a pub/sub message wakes any
// agent that prefers push delivery.
type RedisEnforcer struct {
	client  *redis.Client
	setKey  string
	channel string
}

// NewRedisEnforcer connects to Redis and verifies the connection.
func NewRedisEnforcer(cfg config.RedisConfig) (*RedisEnforcer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Infof("enforce: redis blocklist at %s (key=%s)", cfg.Addr, cfg.BlocklistKey)
	return &RedisEnforcer{
		client:  client,
		setKey:  cfg.BlocklistKey,
		channel: cfg.PublishChannel,
	}, nil
}

// Block adds the source to the blocklist set and announces it. The set write
// is the authoritative action; a failed publish is logged but not fatal.
func (e *RedisEnforcer) Block(ctx context.Context, sourceIP string) error {
	if err := e.client.SAdd(ctx, e.setKey, sourceIP).Err(); err != nil {
		return fmt.Errorf("blocklist add %s: %w", sourceIP, err)
	}
	if err := e.client.Publish(ctx, e.channel, sourceIP).Err(); err != nil {
		logger.Warnf("enforce: block announce for %s failed: %v", sourceIP, err)
	}
	return nil
}

// Close releases the Redis connection.
func (e *RedisEnforcer) Close() error {
	return e.client.Close()
}
