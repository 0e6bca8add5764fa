package aml

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cooldown throttles repeat high-value payments per user. Start reports false
// while an earlier cooldown for key is still running.
type Cooldown interface {
	Start(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryCooldown keeps cooldowns in this process only. Entries live for their
// ttl and are lost on restart; run RedisCooldown when several instances serve
// traffic.
type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{until: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryCooldown) Start(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, t := range m.until {
		if !now.Before(t) {
			delete(m.until, k)
		}
	}
	if _, busy := m.until[key]; busy {
		return false, nil
	}
	m.until[key] = now.Add(ttl)
	return true, nil
}

// RedisCooldown shares cooldowns between instances through SETNX with expiry.
type RedisCooldown struct {
	Client *redis.Client
	Prefix string
}

func NewRedisCooldown(client *redis.Client) *RedisCooldown {
	return &RedisCooldown{Client: client, Prefix: "aml_cooldown:"}
}

func (r *RedisCooldown) Start(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, r.Prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("aml cooldown: %w", err)
	}
	return ok, nil
}
