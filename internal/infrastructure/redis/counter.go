package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to the Redis instance named in cfg and checks it answers.
func NewClient(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", domain.ErrStorage, err)
	}
	return rdb, nil
}

// Counter keeps fixed-window hit counters in Redis so every instance shares one budget.
type Counter struct {
	redis  goredis.UniversalClient
	prefix string
}

func NewCounter(rdb goredis.UniversalClient, prefix string) *Counter {
	return &Counter{redis: rdb, prefix: prefix}
}

func (c *Counter) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Incr runs SET NX (opening the window with its TTL), INCR and PTTL in one MULTI/EXEC,
// so the expiry is set exactly when the window starts and never extended by later hits.
func (c *Counter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	k := c.key(key)
	var (
		incr *goredis.IntCmd
		pttl *goredis.DurationCmd
	)
	_, err := c.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, ttl)
		incr = pipe.Incr(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	left := pttl.Val()
	if left < 0 {
		// Key lost its expiry (e.g. written by an older deployment); restart the window.
		if err := c.redis.PExpire(ctx, k, ttl).Err(); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		left = ttl
	}
	return incr.Val(), left, nil
}

func (c *Counter) Reset(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}
