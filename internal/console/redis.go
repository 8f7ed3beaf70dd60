package console

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/models"
)

const (
	DefaultRefreshChannel = "payplan:console:refresh"
	// The hash tag keeps every queue's count key in one cluster slot.
	DefaultCountPrefix = "payplan:{console}:count:"
	DefaultCountTTL    = 30 * time.Second
)

// RefreshSignal is published whenever console queues may have changed.
type RefreshSignal struct {
	Queues []models.ConsoleQueue `json:"queues"`
	At     time.Time             `json:"at"`
}

// RedisOptions configures the refresher and count cache.
type RedisOptions struct {
	Channel     string
	CountPrefix string
	CountTTL    time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Channel:     DefaultRefreshChannel,
		CountPrefix: DefaultCountPrefix,
		CountTTL:    DefaultCountTTL,
	}
}

func (o RedisOptions) withDefaults() RedisOptions {
	d := DefaultRedisOptions()
	if o.Channel == "" {
		o.Channel = d.Channel
	}
	if o.CountPrefix == "" {
		o.CountPrefix = d.CountPrefix
	}
	if o.CountTTL <= 0 {
		o.CountTTL = d.CountTTL
	}
	return o
}

// RedisRefresher drops cached counts for the touched queues and publishes a
// refresh signal so open consoles reload.
type RedisRefresher struct {
	client redis.UniversalClient
	opts   RedisOptions
	logger logger.Logger
	now    func() time.Time
}

func NewRedisRefresher(client redis.UniversalClient, opts RedisOptions, log logger.Logger) *RedisRefresher {
	return &RedisRefresher{
		client: client,
		opts:   opts.withDefaults(),
		logger: log.WithFields(map[string]interface{}{"component": "console-refresher"}),
		now:    time.Now,
	}
}

func (r *RedisRefresher) Refresh(ctx context.Context, queues ...models.ConsoleQueue) error {
	if len(queues) == 0 {
		return nil
	}

	payload, err := json.Marshal(RefreshSignal{Queues: queues, At: r.now().UTC()})
	if err != nil {
		return errors.NewNotificationSendFailedError("console_refresh", err)
	}

	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = countKey(r.opts.CountPrefix, q)
	}

	// One DEL per key: a configured prefix without a hash tag spreads the
	// keys over several cluster slots.
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		pipe.Publish(ctx, r.opts.Channel, payload)
		return nil
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("console_refresh", err)
	}

	r.logger.Debug("console refresh published", map[string]interface{}{
		"queues": queues,
	})
	return nil
}

// Subscribe delivers refresh signals until ctx is done.
func (r *RedisRefresher) Subscribe(ctx context.Context) (<-chan RefreshSignal, error) {
	sub := r.client.Subscribe(ctx, r.opts.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, errors.NewNotificationSendFailedError("console_subscribe", err)
	}

	out := make(chan RefreshSignal)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var sig RefreshSignal
				if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
					r.logger.Warn("malformed refresh signal", map[string]interface{}{"error": err.Error()})
					continue
				}
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// CountCache memoizes queue counts per filter set. Entries live in one hash
// per queue so a refresh clears them with a single DEL.
type CountCache struct {
	client redis.UniversalClient
	opts   RedisOptions
}

func NewCountCache(client redis.UniversalClient, opts RedisOptions) *CountCache {
	return &CountCache{client: client, opts: opts.withDefaults()}
}

func (c *CountCache) Get(ctx context.Context, queue models.ConsoleQueue, f models.ConsoleFilters) (int, bool, error) {
	raw, err := c.client.HGet(ctx, countKey(c.opts.CountPrefix, queue), filterField(f)).Result()
	if stderrors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (c *CountCache) Set(ctx context.Context, queue models.ConsoleQueue, f models.ConsoleFilters, count int) error {
	key := countKey(c.opts.CountPrefix, queue)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, filterField(f), count)
		pipe.Expire(ctx, key, c.opts.CountTTL)
		return nil
	})
	return err
}

func countKey(prefix string, q models.ConsoleQueue) string {
	return prefix + string(q)
}

// filterField keys a count by the filters that affect it. Paging does not.
func filterField(f models.ConsoleFilters) string {
	raw, _ := json.Marshal([]string{f.ProgramID, f.BusinessArea, f.Search})
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:8])
}
