package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisSession mirrors the last-read cart per user. It is a read cache only;
// storage stays authoritative.
type RedisSession struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisSession(client *redis.Client, ttl time.Duration) *RedisSession {
	return &RedisSession{Client: client, TTL: ttl}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("cart_session:%d", userID)
}

func (r *RedisSession) Save(ctx context.Context, userID int64, v *View) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, sessionKey(userID), b, r.TTL).Err()
}

// Load returns nil, nil when nothing is cached.
func (r *RedisSession) Load(ctx context.Context, userID int64) (*View, error) {
	b, err := r.Client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v View
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *RedisSession) Clear(ctx context.Context, userID int64) error {
	return r.Client.Del(ctx, sessionKey(userID)).Err()
}
