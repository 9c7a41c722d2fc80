package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veil/chat-app/internal/user"
)

const testID user.ID = 920000001

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cleanup := func() {
		member := strconv.FormatInt(int64(testID), 10)
		for _, rule := range []Rule{RuleMessage, RuleSearch, RuleReport} {
			client.Del(ctx, rule.Prefix+member)
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return New(client)
}

func TestLimiter_AllowUpToLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Prefix: RuleReport.Prefix, Limit: 3, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		if !l.Allow(ctx, testID, rule) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow(ctx, testID, rule) {
		t.Error("request over the limit should be denied")
	}
}

func TestLimiter_Remaining(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	if got := l.Remaining(ctx, testID, RuleSearch); got != RuleSearch.Limit {
		t.Fatalf("fresh Remaining = %d, want %d", got, RuleSearch.Limit)
	}

	l.Allow(ctx, testID, RuleSearch)
	l.Allow(ctx, testID, RuleSearch)
	if got := l.Remaining(ctx, testID, RuleSearch); got != RuleSearch.Limit-2 {
		t.Errorf("Remaining = %d, want %d", got, RuleSearch.Limit-2)
	}
}

func TestLimiter_NilClientFailsOpen(t *testing.T) {
	l := New(nil)
	ctx := context.Background()

	for i := 0; i < RuleMessage.Limit*2; i++ {
		if !l.Allow(ctx, testID, RuleMessage) {
			t.Fatal("nil-client limiter must allow everything")
		}
	}
	if got := l.Remaining(ctx, testID, RuleMessage); got != RuleMessage.Limit {
		t.Errorf("nil-client Remaining = %d, want full limit", got)
	}
}
