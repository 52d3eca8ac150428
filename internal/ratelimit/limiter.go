// Package ratelimit provides Redis-backed throttling using INCR + EXPIRE
// fixed windows, keyed per user. On Redis errors it fails open so a cache
// outage never blocks legitimate traffic.
package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines one throttling policy.
type Rule struct {
	Key    string        // Redis key prefix
	Limit  int           // max count per window
	Window time.Duration // window duration
}

var (
	// RuleMessage allows 10 relayed messages per 10 seconds per user.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 10, Window: 10 * time.Second}

	// RuleSearch allows 6 search requests per minute per user.
	RuleSearch = Rule{Key: "rl:search:", Limit: 6, Window: time.Minute}
)

// Limiter checks rules against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow increments the user's counter for the rule and reports whether the
// action is within the limit. The expiry is set on the first increment of
// each window.
func (l *Limiter) Allow(ctx context.Context, userID int64, rule Rule) bool {
	key := rule.Key + strconv.FormatInt(userID, 10)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] INCR %s: %v (failing open)", key, err)
		return true
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] EXPIRE %s: %v (failing open)", key, err)
			// Key has no TTL and would throttle the user forever; best
			// effort removal.
			l.client.Del(ctx, key)
			return true
		}
	}

	return int(count) <= rule.Limit
}
