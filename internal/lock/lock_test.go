package lock

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
)

// ==========================
// Local locker
// ==========================

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "plan-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.locks)
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "plan-a")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx2, "plan-b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "plan-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "plan-1")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConflict))
	assert.True(t, errors.IsTransient(err))
}

func TestLocalLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "plan-1")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "plan-1")
	require.NoError(t, err)
	again()
}

// ==========================
// Redis locker
// ==========================

func newMiniredisLocker(t *testing.T, opts RedisOptions) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, opts, logger.NewTestLogger(t)), mr
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	l, mr := newMiniredisLocker(t, RedisOptions{TTL: time.Second, MaxWait: 50 * time.Millisecond, RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "plan-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("payplan:lock:plan-1"))

	_, err = l.Lock(ctx, "plan-1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	unlock()
	assert.False(t, mr.Exists("payplan:lock:plan-1"))

	unlock2, err := l.Lock(ctx, "plan-1")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	l, mr := newMiniredisLocker(t, RedisOptions{TTL: 100 * time.Millisecond, MaxWait: 50 * time.Millisecond, RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	staleUnlock, err := l.Lock(ctx, "plan-1")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)

	freshUnlock, err := l.Lock(ctx, "plan-1")
	require.NoError(t, err)

	staleUnlock()
	assert.True(t, mr.Exists("payplan:lock:plan-1"), "stale holder must not delete the new holder's lock")

	freshUnlock()
	assert.False(t, mr.Exists("payplan:lock:plan-1"))
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	l, _ := newMiniredisLocker(t, RedisOptions{TTL: time.Second, MaxWait: time.Second, RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "plan-1")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		unlock()
	}()

	unlock2, err := l.Lock(ctx, "plan-1")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_StorageFailure(t *testing.T) {
	l, mr := newMiniredisLocker(t, RedisOptions{})
	mr.SetError("ERR server unavailable")

	_, err := l.Lock(context.Background(), "plan-1")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStorageFailure, errors.CodeOf(err))
	assert.True(t, errors.IsTransient(err))
}
