// Package ledger provides the Redis-backed persistence the engine treats
// as a plain counter/flag store: like counters, report tallies, and the
// durable ban/mute flags that survive restarts. Keys:
//
//	likes:<user_id>    like counter (INCR)
//	reports:<user_id>  report tally (INCR)
//	handle:<user_id>   public display handle
//	banned             set of banned user ids
//	muted              set of muted user ids
package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/veil/chat-app/internal/user"
)

const (
	likePrefix   = "likes:"
	reportPrefix = "reports:"
	handlePrefix = "handle:"
	bannedKey    = "banned"
	mutedKey     = "muted"
)

// Store wraps a Redis client with the engine's persistence operations.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a ledger store using the provided Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// IncrementLike atomically increments the user's persistent like counter
// and returns the new value.
func (s *Store) IncrementLike(ctx context.Context, id user.ID) (int64, error) {
	n, err := s.rdb.Incr(ctx, likePrefix+formatID(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: incr like: %w", err)
	}
	return n, nil
}

// LikeCount returns the user's like counter, zero if absent.
func (s *Store) LikeCount(ctx context.Context, id user.ID) (int64, error) {
	return s.counter(ctx, likePrefix+formatID(id))
}

// IncrementReport atomically increments the report tally kept against
// the user and returns the new value.
func (s *Store) IncrementReport(ctx context.Context, id user.ID) (int64, error) {
	n, err := s.rdb.Incr(ctx, reportPrefix+formatID(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: incr report: %w", err)
	}
	return n, nil
}

// ReportCount returns the report tally against the user, zero if absent.
func (s *Store) ReportCount(ctx context.Context, id user.ID) (int64, error) {
	return s.counter(ctx, reportPrefix+formatID(id))
}

// SetBanned adds or removes the user from the durable banned set.
func (s *Store) SetBanned(ctx context.Context, id user.ID, banned bool) error {
	return s.setFlag(ctx, bannedKey, id, banned)
}

// SetMuted adds or removes the user from the durable muted set.
func (s *Store) SetMuted(ctx context.Context, id user.ID, muted bool) error {
	return s.setFlag(ctx, mutedKey, id, muted)
}

// Load returns the user's durable ban and mute flags.
func (s *Store) Load(ctx context.Context, id user.ID) (banned, muted bool, err error) {
	member := formatID(id)
	pipe := s.rdb.Pipeline()
	bannedCmd := pipe.SIsMember(ctx, bannedKey, member)
	mutedCmd := pipe.SIsMember(ctx, mutedKey, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, false, fmt.Errorf("ledger: load flags: %w", err)
	}
	return bannedCmd.Val(), mutedCmd.Val(), nil
}

// SetHandle stores the user's public display handle. An empty handle
// deletes the entry.
func (s *Store) SetHandle(ctx context.Context, id user.ID, handle string) error {
	key := handlePrefix + formatID(id)
	var err error
	if handle == "" {
		err = s.rdb.Del(ctx, key).Err()
	} else {
		err = s.rdb.Set(ctx, key, handle, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("ledger: set handle: %w", err)
	}
	return nil
}

// DisplayHandle returns the stored handle. The second return is false
// when the user never set one.
func (s *Store) DisplayHandle(ctx context.Context, id user.ID) (string, bool) {
	v, err := s.rdb.Get(ctx, handlePrefix+formatID(id)).Result()
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (s *Store) setFlag(ctx context.Context, key string, id user.ID, on bool) error {
	member := formatID(id)
	var err error
	if on {
		err = s.rdb.SAdd(ctx, key, member).Err()
	} else {
		err = s.rdb.SRem(ctx, key, member).Err()
	}
	if err != nil {
		return fmt.Errorf("ledger: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) counter(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: get %s: %w", key, err)
	}
	return n, nil
}

func formatID(id user.ID) string {
	return strconv.FormatInt(int64(id), 10)
}
