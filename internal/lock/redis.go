package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
)

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisOptions struct {
	Prefix        string
	TTL           time.Duration
	RetryInterval time.Duration
	MaxWait       time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:        "payplan:lock:",
		TTL:           30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
		MaxWait:       5 * time.Second,
	}
}

// RedisLocker is a SET NX PX lock shared by every worker instance.
type RedisLocker struct {
	client redis.UniversalClient
	opts   RedisOptions
	logger logger.Logger
}

func NewRedisLocker(client redis.UniversalClient, opts RedisOptions, log logger.Logger) *RedisLocker {
	def := DefaultRedisOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = def.MaxWait
	}
	if opts.Prefix == "" {
		opts.Prefix = def.Prefix
	}
	return &RedisLocker{client: client, opts: opts, logger: log}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.opts.Prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.opts.MaxWait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, errors.NewStorageFailureError("", "lock", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.NewConflictError("", "lock "+key+" is held by another worker")
		}

		timer := time.NewTimer(l.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.NewConflictError("", "waiting for lock "+key+": "+ctx.Err().Error())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
				l.logger.Warn("Failed to release plan lock", map[string]interface{}{
					"key":   fullKey,
					"error": err.Error(),
				})
			}
		})
	}, nil
}
