package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes chat notifications as JSON events on a channel the
// chat service subscribes to.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

// DialRedisNotifier connects using a redis:// URL and verifies the connection.
func DialRedisNotifier(ctx context.Context, redisURL, channel string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisNotifier(rdb, channel), nil
}

func (n *RedisNotifier) SendMatchAck(ctx context.Context, matchID string, playerIDs []string, gameMode string, expiresAt time.Time) Delivery {
	return delivered(TargetChat, n.publish(ctx, newMatchAckEvent(matchID, playerIDs, gameMode, expiresAt)))
}

func (n *RedisNotifier) CreateGameSessionChannel(ctx context.Context, playerIDs []string, gameSessionID string) Delivery {
	return delivered(TargetChat, n.publish(ctx, newGameSessionEvent(playerIDs, gameSessionID)))
}

func (n *RedisNotifier) publish(ctx context.Context, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
