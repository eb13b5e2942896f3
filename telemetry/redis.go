package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultHistory is the number of snapshots kept per device.
const DefaultHistory = 1000

// RedisPublisher publishes snapshots on a Redis channel and keeps the
// latest History snapshots of each device in a list.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	history int64
	logger  *slog.Logger
}

// NewRedisPublisher wraps an existing client. A history of zero selects
// DefaultHistory.
func NewRedisPublisher(client *redis.Client, channel string, history int64, logger *slog.Logger) *RedisPublisher {
	if history <= 0 {
		history = DefaultHistory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		history: history,
		logger:  logger,
	}
}

// DialRedis connects to addr and checks the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// HistoryKey is the list holding the recent snapshots of device.
func HistoryKey(device string) string {
	return fmt.Sprintf("pumpctl:%s:snapshots", device)
}

func (p *RedisPublisher) Publish(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}

	key := HistoryKey(s.Device)
	if err := p.client.LPush(ctx, key, data).Err(); err != nil {
		p.logger.Warn("Failed to store snapshot", "key", key, "error", err)
		return nil
	}
	if err := p.client.LTrim(ctx, key, 0, p.history-1).Err(); err != nil {
		p.logger.Warn("Failed to trim snapshot history", "key", key, "error", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
