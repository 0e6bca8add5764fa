package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewRedis(client, "test_lock:"), mr
}

func TestTryLockAndUnlockByOwnerOnly(t *testing.T) {
	l, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "coach:7", "approval-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "coach:7", "approval-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not take a held lock")

	require.NoError(t, l.Unlock(ctx, "coach:7", "approval-2"))
	holder, err := l.Holder(ctx, "coach:7")
	require.NoError(t, err)
	assert.Equal(t, "approval-1", holder, "non-owner unlock must be ignored")

	require.NoError(t, l.Unlock(ctx, "coach:7", "approval-1"))
	holder, err = l.Holder(ctx, "coach:7")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestLockExpires(t *testing.T) {
	l, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "coach:1", "a", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	ok, err = l.TryLock(ctx, "coach:1", "b", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireGivesUp(t *testing.T) {
	l, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "coach:3", "a", time.Minute, 0))
	err := l.Acquire(ctx, "coach:3", "b", time.Minute, 120*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestConcurrentTryLockSingleWinner(t *testing.T) {
	l, _ := setupTestRedis(t)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := l.TryLock(ctx, "coach:9", string(rune('a'+i)), time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
