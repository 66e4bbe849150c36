package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alim08/partner_events/pkg/logger"
	"github.com/alim08/partner_events/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
	opTimeout        = 100 * time.Millisecond
)

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32
}

// New constructs a Client with sensible defaults
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// Wrap adopts an already configured go-redis client.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// allow reports whether a call may go through. An open breaker lets a
// single probe through once the cooldown has elapsed.
func (c *Client) allow() bool {
	switch atomic.LoadInt32(&c.state) {
	case stateOpen:
		since := time.Since(time.Unix(atomic.LoadInt64(&c.lastFailure), 0))
		return since >= breakerCooldown && atomic.CompareAndSwapInt32(&c.state, stateOpen, stateHalfOpen)
	default:
		return true
	}
}

// checkCircuitBreaker records the outcome of a call
func (c *Client) checkCircuitBreaker(err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())
		if atomic.AddInt64(&c.failureCount, 1) >= breakerThreshold || atomic.LoadInt32(&c.state) == stateHalfOpen {
			if atomic.SwapInt32(&c.state, stateOpen) != stateOpen {
				logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"))
			}
		}
		return
	}
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, stateClosed)
}

// write runs a mutating command with a per-attempt timeout and exponential backoff
func (c *Client) write(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return c.withMetrics(operation, func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		op := func() error {
			ctx, cancel := context.WithTimeout(ctx, opTimeout)
			defer cancel()
			err := fn(ctx)
			c.checkCircuitBreaker(err)
			return err
		}
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		return backoff.Retry(op, bo)
	})
}

// read runs a query once; callers decide what a failed read means.
func (c *Client) read(operation string, fn func() error) error {
	return c.withMetrics(operation, func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		err := fn()
		c.checkCircuitBreaker(err)
		return err
	})
}

// HSetNX sets field only if it does not exist yet; reports whether it was set.
func (c *Client) HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error) {
	var set bool
	err := c.write(ctx, "hsetnx", func(ctx context.Context) error {
		var err error
		set, err = c.rdb.HSetNX(ctx, key, field, value).Result()
		return err
	})
	return set, err
}

// HSet writes all field/value pairs in one command.
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) error {
	return c.write(ctx, "hset", func(ctx context.Context) error {
		return c.rdb.HSet(ctx, key, values...).Err()
	})
}

// ZAdd adds or rescores members of a sorted set.
func (c *Client) ZAdd(ctx context.Context, key string, members ...*redis.Z) error {
	return c.write(ctx, "zadd", func(ctx context.Context) error {
		return c.rdb.ZAdd(ctx, key, members...).Err()
	})
}

// HGetAll retrieves all fields from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := c.read("hgetall", func() error {
		var err error
		out, err = c.rdb.HGetAll(ctx, key).Result()
		return err
	})
	return out, err
}

// ZRangeByScore lists sorted-set members inside the score range.
func (c *Client) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) ([]string, error) {
	var out []string
	err := c.read("zrangebyscore", func() error {
		var err error
		out, err = c.rdb.ZRangeByScore(ctx, key, opt).Result()
		return err
	})
	return out, err
}

// ZCard returns the sorted-set cardinality.
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := c.read("zcard", func() error {
		var err error
		n, err = c.rdb.ZCard(ctx, key).Result()
		return err
	})
	return n, err
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		return c.rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
