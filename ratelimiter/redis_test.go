package ratelimiter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis limiter test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter_TryConsume(t *testing.T) {
	client := newTestRedis(t)
	l := NewRedisLimiter(client, "weaver-test:"+uuid.NewString(), 100, 2, nil)

	assert.True(t, l.TryConsume(10))
	assert.True(t, l.TryConsume(10))
	assert.False(t, l.TryConsume(10), "request budget exhausted")
	assert.Greater(t, l.TimeUntilAvailable(10), time.Duration(0))
}

func TestRedisLimiter_TokensExhausted(t *testing.T) {
	client := newTestRedis(t)
	l := NewRedisLimiter(client, "weaver-test:"+uuid.NewString(), 50, 10, nil)

	assert.True(t, l.TryConsume(40))
	assert.False(t, l.TryConsume(20))
	assert.True(t, l.TryConsume(10))
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	l := NewRedisLimiter(client, "weaver-test", 1, 1, nil)

	assert.True(t, l.TryConsume(1000))
	assert.Equal(t, time.Duration(0), l.TimeUntilAvailable(1000))
	assert.NoError(t, l.WaitAndConsume(context.Background(), 1, 0))
}
