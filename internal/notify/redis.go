package notify

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisConfig names the server and channel for published reports.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// RedisNotifier publishes reports as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisClient opens a client for cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "tripsync:errors"
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := msg.encode()
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", n.channel, err)
	}
	return nil
}

// Close releases the underlying client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
