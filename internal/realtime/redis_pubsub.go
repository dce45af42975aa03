package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "feedback:"

// redisPayload is the message published for cross-instance observers.
type redisPayload struct {
	SessionReference string          `json:"session_reference"`
	Data             json.RawMessage `json:"data"`
	At               int64           `json:"at"`
}

// RedisPubSub implements EventPublisher using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for feedback events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// Channel returns the Redis channel for a session reference.
func Channel(sessionRef string) string { return channelPrefix + sessionRef }

// PublishFeedback publishes an encoded outbound message to the session's channel.
func (r *RedisPubSub) PublishFeedback(ctx context.Context, sessionRef string, payload []byte) error {
	body, err := sonic.Marshal(redisPayload{SessionReference: sessionRef, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, Channel(sessionRef), body).Err()
}
