package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter connects to a local Redis instance, skipping the test when
// none is available.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, "rl:*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewLimiter(client)
}

func TestAllowWithinLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:within:", Limit: 3, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		if !limiter.Allow(ctx, 1, rule) {
			t.Fatalf("request %d denied within limit %d", i+1, rule.Limit)
		}
	}
	if limiter.Allow(ctx, 1, rule) {
		t.Errorf("request over the limit was allowed")
	}
}

func TestAllowIsolatesUsers(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:iso:", Limit: 1, Window: time.Minute}

	if !limiter.Allow(ctx, 1, rule) {
		t.Fatal("first request for user 1 denied")
	}
	if limiter.Allow(ctx, 1, rule) {
		t.Error("second request for user 1 allowed")
	}
	if !limiter.Allow(ctx, 2, rule) {
		t.Error("user 2 throttled by user 1's counter")
	}
}

func TestAllowWindowExpiry(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:expiry:", Limit: 1, Window: time.Second}

	if !limiter.Allow(ctx, 1, rule) {
		t.Fatal("first request denied")
	}
	if limiter.Allow(ctx, 1, rule) {
		t.Fatal("request over the limit allowed")
	}

	time.Sleep(1100 * time.Millisecond)

	if !limiter.Allow(ctx, 1, rule) {
		t.Error("request denied after the window expired")
	}
}

func TestAllowFailsOpenWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	limiter := NewLimiter(client)

	if !limiter.Allow(context.Background(), 1, RuleMessage) {
		t.Error("limiter did not fail open on redis error")
	}
}
