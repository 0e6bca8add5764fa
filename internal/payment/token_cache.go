package payment

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// tokenExpiryBuffer is subtracted from the provider's expires_in so a cached
// token is never used in its last minute.
const tokenExpiryBuffer = 60 * time.Second

type TokenCache struct {
	Client *redis.Client
	Key    string
}

func NewTokenCache(client *redis.Client, key string) *TokenCache {
	return &TokenCache{Client: client, Key: key}
}

// Get returns "" when no usable token is cached.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	tok, err := c.Client.Get(ctx, c.Key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return tok, err
}

func (c *TokenCache) Set(ctx context.Context, token string, expiresIn time.Duration) error {
	ttl := expiresIn - tokenExpiryBuffer
	if ttl <= 0 {
		return nil
	}
	return c.Client.Set(ctx, c.Key, token, ttl).Err()
}
