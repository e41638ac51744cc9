package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	limiter := NewRateLimiter(client)

	key := IPLimitKey("join", "203.0.113.7")
	client.Del(ctx, "ratelimit:"+key)

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.CheckLimit(ctx, key, 3, 10*time.Second)
		assert.True(t, allowed, "hit %d should pass", i+1)
	}

	allowed, resetAt := limiter.CheckLimit(ctx, key, 3, 10*time.Second)
	assert.False(t, allowed)
	assert.True(t, resetAt.After(time.Now()))
}

func TestRateLimiter_DeniesWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	allowed, resetAt := NewRateLimiter(client).CheckLimit(context.Background(), "k", 5, time.Minute)
	assert.False(t, allowed)
	assert.True(t, resetAt.After(time.Now()))
}

func TestIPLimitKey(t *testing.T) {
	assert.Equal(t, "ip:join:10.0.0.1", IPLimitKey("join", "10.0.0.1"))
}
