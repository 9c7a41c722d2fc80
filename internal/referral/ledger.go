// Package referral records who invited whom. Attribution happens at
// most once per invitee; the referrer's counter and the global total are
// incremented together. Keys:
//
//	invited_by:<invitee_id>   referrer id (SETNX, written once)
//	referrals:<referrer_id>   per-referrer counter
//	referrals:total           global counter
package referral

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/veil/chat-app/internal/user"
)

const (
	invitedByPrefix = "invited_by:"
	countPrefix     = "referrals:"
	totalKey        = "referrals:total"
)

// Ledger is the Redis-backed referral store.
type Ledger struct {
	rdb *redis.Client
}

// NewLedger creates a referral ledger using the provided Redis client.
func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// Invite attributes the invitee to the referrer. The first attribution
// wins: if the invitee was already recorded, nothing is incremented and
// Invite returns false.
func (l *Ledger) Invite(ctx context.Context, invitee, referrer user.ID) (bool, error) {
	set, err := l.rdb.SetNX(ctx, invitedByPrefix+formatID(invitee), formatID(referrer), 0).Result()
	if err != nil {
		return false, fmt.Errorf("referral: record invite: %w", err)
	}
	if !set {
		return false, nil
	}

	pipe := l.rdb.Pipeline()
	pipe.Incr(ctx, countPrefix+formatID(referrer))
	pipe.Incr(ctx, totalKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("referral: incr counters: %w", err)
	}
	return true, nil
}

// Count returns how many users the referrer has invited.
func (l *Ledger) Count(ctx context.Context, id user.ID) (int64, error) {
	return l.counter(ctx, countPrefix+formatID(id))
}

// Total returns the global number of attributed referrals.
func (l *Ledger) Total(ctx context.Context) (int64, error) {
	return l.counter(ctx, totalKey)
}

func (l *Ledger) counter(ctx context.Context, key string) (int64, error) {
	n, err := l.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("referral: get %s: %w", key, err)
	}
	return n, nil
}

func formatID(id user.ID) string {
	return strconv.FormatInt(int64(id), 10)
}
