package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// SessionChannel is the Redis pub/sub channel carrying a session's events.
func SessionChannel(sessionID string) string {
	return "session:" + sessionID + ":events"
}

// RedisPublisher fans envelopes out over Redis pub/sub so subscribers in any
// process (the WebSocket handlers in particular) see them.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, SessionChannel(env.SessionID), b).Err()
}
