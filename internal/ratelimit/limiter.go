// Package ratelimit throttles per-user actions with Redis INCR + EXPIRE
// counters. A missing or unreachable Redis never blocks traffic; every
// check fails open.
package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veil/chat-app/internal/user"
)

// Rule is a throttling policy: key prefix, allowed count and window.
type Rule struct {
	Prefix string
	Limit  int
	Window time.Duration
}

var (
	// RuleMessage caps relayed messages at 20 per 10 seconds per user.
	RuleMessage = Rule{Prefix: "rl:msg:", Limit: 20, Window: 10 * time.Second}

	// RuleSearch caps partner searches at 10 per minute per user.
	RuleSearch = Rule{Prefix: "rl:search:", Limit: 10, Window: time.Minute}

	// RuleReport caps abuse reports at 3 per minute per user.
	RuleReport = Rule{Prefix: "rl:report:", Limit: 3, Window: time.Minute}
)

// Limiter checks rules against Redis.
type Limiter struct {
	rdb *redis.Client
}

// New returns a Limiter backed by rdb. A nil client yields a limiter
// that allows everything.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// Allow increments the counter for id under rule and reports whether the
// action is within the limit. The window TTL is set on the first
// increment. Redis errors fail open.
func (l *Limiter) Allow(ctx context.Context, id user.ID, rule Rule) bool {
	if l.rdb == nil {
		return true
	}
	key := rule.Prefix + strconv.FormatInt(int64(id), 10)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] INCR %s: %v (failing open)", key, err)
		return true
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] EXPIRE %s: %v (failing open)", key, err)
			// Without a TTL the counter would lock the user out forever.
			l.rdb.Del(ctx, key)
			return true
		}
	}

	return int(count) <= rule.Limit
}

// Remaining reports how many actions id has left in the current window.
func (l *Limiter) Remaining(ctx context.Context, id user.ID, rule Rule) int {
	if l.rdb == nil {
		return rule.Limit
	}
	key := rule.Prefix + strconv.FormatInt(int64(id), 10)

	count, err := l.rdb.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit
	}
	if err != nil {
		log.Printf("[ratelimit] GET %s: %v (failing open)", key, err)
		return rule.Limit
	}

	left := rule.Limit - count
	if left < 0 {
		left = 0
	}
	return left
}
