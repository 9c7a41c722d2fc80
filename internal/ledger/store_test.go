package ledger

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/veil/chat-app/internal/user"
)

// Test ids live far outside the range the server allocates so cleanup
// cannot touch real data on a shared Redis.
const testID user.ID = 900000001

// newTestStore connects to a local Redis and removes the keys the tests
// touch. Tests are skipped when Redis is unavailable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cleanup := func() {
		for _, id := range []user.ID{testID, testID + 1, testID + 2} {
			member := formatID(id)
			client.Del(ctx, likePrefix+member, reportPrefix+member, handlePrefix+member)
			client.SRem(ctx, bannedKey, member)
			client.SRem(ctx, mutedKey, member)
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewStore(client)
}

func TestStore_LikeCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if n, err := s.LikeCount(ctx, testID); err != nil || n != 0 {
		t.Fatalf("fresh LikeCount = %d err=%v", n, err)
	}

	if n, err := s.IncrementLike(ctx, testID); err != nil || n != 1 {
		t.Fatalf("IncrementLike = %d err=%v", n, err)
	}
	if n, err := s.IncrementLike(ctx, testID); err != nil || n != 2 {
		t.Fatalf("second IncrementLike = %d err=%v", n, err)
	}
	if n, _ := s.LikeCount(ctx, testID); n != 2 {
		t.Errorf("LikeCount = %d, want 2", n)
	}
}

func TestStore_ReportTally(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if n, err := s.IncrementReport(ctx, testID); err != nil || n != 1 {
		t.Fatalf("IncrementReport = %d err=%v", n, err)
	}
	if n, _ := s.ReportCount(ctx, testID); n != 1 {
		t.Errorf("ReportCount = %d, want 1", n)
	}
	if n, _ := s.ReportCount(ctx, testID+1); n != 0 {
		t.Errorf("unrelated ReportCount = %d, want 0", n)
	}
}

func TestStore_Flags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	banned, muted, err := s.Load(ctx, testID)
	if err != nil || banned || muted {
		t.Fatalf("fresh Load = (%v,%v) err=%v", banned, muted, err)
	}

	if err := s.SetBanned(ctx, testID, true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	if err := s.SetMuted(ctx, testID, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	banned, muted, _ = s.Load(ctx, testID)
	if !banned || !muted {
		t.Errorf("Load after set = (%v,%v), want (true,true)", banned, muted)
	}

	if err := s.SetBanned(ctx, testID, false); err != nil {
		t.Fatalf("clear SetBanned: %v", err)
	}
	banned, muted, _ = s.Load(ctx, testID)
	if banned || !muted {
		t.Errorf("Load after clear = (%v,%v), want (false,true)", banned, muted)
	}
}

func TestStore_Handles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.DisplayHandle(ctx, testID); ok {
		t.Fatal("fresh user should have no handle")
	}

	if err := s.SetHandle(ctx, testID, "alice"); err != nil {
		t.Fatalf("SetHandle: %v", err)
	}
	h, ok := s.DisplayHandle(ctx, testID)
	if !ok || h != "alice" {
		t.Errorf("DisplayHandle = (%q,%v)", h, ok)
	}

	if err := s.SetHandle(ctx, testID, ""); err != nil {
		t.Fatalf("clear SetHandle: %v", err)
	}
	if _, ok := s.DisplayHandle(ctx, testID); ok {
		t.Error("cleared handle should be gone")
	}
}
