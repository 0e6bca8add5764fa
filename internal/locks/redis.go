// Package locks provides short-lived Redis mutual exclusion keyed by owner.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotAcquired is returned by Acquire when another owner holds the key.
var ErrNotAcquired = errors.New("lock held by another owner")

// Only the owner may delete; compare and delete in one round trip.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Redis struct {
	Client *redis.Client
	Prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{Client: client, Prefix: prefix}
}

func (r *Redis) key(name string) string {
	return r.Prefix + name
}

// TryLock sets the key if absent. It reports false without error when the key is taken.
func (r *Redis) TryLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, r.key(name), owner, ttl).Result()
}

// Acquire retries TryLock until ctx is done or wait elapses.
func (r *Redis) Acquire(ctx context.Context, name, owner string, ttl, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := r.TryLock(ctx, name, owner, ttl)
		if err != nil {
			return fmt.Errorf("lock %s: %w", name, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Unlock releases name if owner still holds it. Releasing an expired lock is not an error.
func (r *Redis) Unlock(ctx context.Context, name, owner string) error {
	err := releaseScript.Run(ctx, r.Client, []string{r.key(name)}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Holder returns the current owner or "" when unlocked.
func (r *Redis) Holder(ctx context.Context, name string) (string, error) {
	v, err := r.Client.Get(ctx, r.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
