package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// consumeScript checks both fixed-window counters and bumps them only when
// both have room, so concurrent replicas never overshoot.
var consumeScript = redis.NewScript(`
local tokens = tonumber(ARGV[1])
local tokenLimit = tonumber(ARGV[2])
local requestLimit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local requests = tonumber(redis.call('GET', KEYS[2]) or '0')
if used + tokens > tokenLimit or requests + 1 > requestLimit then
  return 0
end
redis.call('INCRBY', KEYS[1], tokens)
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ttl)
return 1
`)

// RedisLimiter is a fixed-window limiter shared through Redis by every
// process pointing at the same key prefix. Redis errors fail open.
type RedisLimiter struct {
	client            redis.UniversalClient
	prefix            string
	tokensPerWindow   int
	requestsPerWindow int
	window            time.Duration
	opTimeout         time.Duration
	logger            *zap.Logger
	now               func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a per-minute limiter stored under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, tokensPerMinute, requestsPerMinute int, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client:            client,
		prefix:            prefix,
		tokensPerWindow:   tokensPerMinute,
		requestsPerWindow: requestsPerMinute,
		window:            time.Minute,
		opTimeout:         500 * time.Millisecond,
		logger:            logger.Named("RedisLimiter"),
		now:               time.Now,
	}
}

func (l *RedisLimiter) keys(now time.Time) (string, string) {
	slot := strconv.FormatInt(now.UnixNano()/int64(l.window), 10)
	return fmt.Sprintf("%s:tokens:%s", l.prefix, slot), fmt.Sprintf("%s:requests:%s", l.prefix, slot)
}

// TryConsume atomically checks capacity and consumes tokens if available.
func (l *RedisLimiter) TryConsume(numTokens int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.opTimeout)
	defer cancel()
	ok, err := l.consume(ctx, numTokens)
	if err != nil {
		l.logger.Warn("redis limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return ok
}

func (l *RedisLimiter) consume(ctx context.Context, numTokens int) (bool, error) {
	tokensKey, requestsKey := l.keys(l.now())
	res, err := consumeScript.Run(ctx, l.client,
		[]string{tokensKey, requestsKey},
		numTokens, l.tokensPerWindow, l.requestsPerWindow, l.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("consume script: %w", err)
	}
	return res == 1, nil
}

// TimeUntilAvailable returns zero when the current window has room, otherwise
// the time left until the window rolls over.
func (l *RedisLimiter) TimeUntilAvailable(tokens int) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), l.opTimeout)
	defer cancel()

	now := l.now()
	tokensKey, requestsKey := l.keys(now)
	vals, err := l.client.MGet(ctx, tokensKey, requestsKey).Result()
	if err != nil {
		l.logger.Warn("redis limiter read failed", zap.Error(err))
		return 0
	}
	used, requests := counter(vals[0]), counter(vals[1])
	if used+tokens <= l.tokensPerWindow && requests+1 <= l.requestsPerWindow {
		return 0
	}
	return l.window - time.Duration(now.UnixNano()%int64(l.window))
}

// WaitAndConsume waits for the next window when the current one is full.
func (l *RedisLimiter) WaitAndConsume(ctx context.Context, tokens int, maxWait time.Duration) error {
	if tokens > l.tokensPerWindow {
		return errors.New("request exceeds window capacity")
	}
	deadline := time.Time{}
	if maxWait > 0 {
		deadline = l.now().Add(maxWait)
	}
	for {
		ok, err := l.consume(ctx, tokens)
		if err != nil {
			l.logger.Warn("redis limiter unavailable, allowing request", zap.Error(err))
			return nil
		}
		if ok {
			return nil
		}

		wait := l.TimeUntilAvailable(tokens)
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if !deadline.IsZero() && l.now().Add(wait).After(deadline) {
			return fmt.Errorf("rate limit wait time %v exceeds max wait %v", wait, maxWait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func counter(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
