package engine

import (
	"context"
	"log"

	"github.com/veil/chat-app/internal/delivery"
	"github.com/veil/chat-app/internal/metrics"
	"github.com/veil/chat-app/internal/user"
)

// Stats is the snapshot returned to the admin panel.
type Stats struct {
	AgreedUsers    int
	WaitingUsers   int
	ActiveChats    int
	BannedUsers    int
	Reports        int64
	TotalReferrals int64
}

// BanUser sets the ban flag on the target and tears down whatever state
// the target holds: a running search is cancelled, an active chat is
// terminated with the partner notified. The ban-triggered termination is
// attributed to the ban, not to the banned user, so the banned user gets
// a ban notice instead of a "chat ended" confirmation.
func (e *Engine) BanUser(ctx context.Context, target user.ID) error {
	if target == 0 {
		return ErrValidation
	}
	e.users.SetBanned(target, true)
	e.persistBan(ctx, target, true)

	e.timers.Disarm(target)
	e.mu.Lock()
	removed := e.pool.Cancel(target)
	var outs []outbound
	if c, ok := e.chats.Lookup(target); ok {
		outs = e.terminateLocked(c, target, false)
	}
	e.mu.Unlock()

	if removed {
		metrics.WaitingUsers.Set(float64(e.pool.Len()))
	}
	outs = append(outs, outbound{target, delivery.Notice(delivery.NoticeBanned, "")})
	e.send(ctx, outs)

	log.Printf("[engine] banned %d", target)
	return nil
}

// UnbanUser clears the ban flag. Prior queue or chat state is not
// restored.
func (e *Engine) UnbanUser(ctx context.Context, target user.ID) error {
	if target == 0 {
		return ErrValidation
	}
	e.users.SetBanned(target, false)
	e.persistBan(ctx, target, false)
	log.Printf("[engine] unbanned %d", target)
	return nil
}

// MuteUser sets the mute flag. Muting only blocks relay from the target;
// their chat binding is untouched.
func (e *Engine) MuteUser(ctx context.Context, target user.ID) error {
	if target == 0 {
		return ErrValidation
	}
	e.users.SetMuted(target, true)
	e.persistMute(ctx, target, true)
	log.Printf("[engine] muted %d", target)
	return nil
}

// UnmuteUser clears the mute flag.
func (e *Engine) UnmuteUser(ctx context.Context, target user.ID) error {
	if target == 0 {
		return ErrValidation
	}
	e.users.SetMuted(target, false)
	e.persistMute(ctx, target, false)
	log.Printf("[engine] unmuted %d", target)
	return nil
}

// TerminateAllChats closes every live chat exactly once, even though
// each chat is reachable from both parties' registry entries. The close
// is attributed to nobody in the pair, so both parties receive a
// partner-ended notice. Returns the number of chats closed.
func (e *Engine) TerminateAllChats(ctx context.Context) int {
	e.mu.Lock()
	chats := e.chats.All()
	var outs []outbound
	for _, c := range chats {
		outs = append(outs, e.terminateLocked(c, 0, false)...)
	}
	e.mu.Unlock()

	e.send(ctx, outs)
	log.Printf("[engine] bulk close terminated %d chats", len(chats))
	return len(chats)
}

// Stats returns an admin snapshot of the engine and its ledgers.
func (e *Engine) Stats(ctx context.Context) Stats {
	s := Stats{
		AgreedUsers:  e.users.AgreedCount(),
		WaitingUsers: e.pool.Len(),
		ActiveChats:  e.chats.Count(),
		BannedUsers:  e.users.BannedCount(),
		Reports:      e.reportCount.Load(),
	}
	if e.referrals != nil {
		total, err := e.referrals.Total(ctx)
		if err != nil {
			log.Printf("[engine] referral total: %v", err)
		} else {
			s.TotalReferrals = total
		}
	}
	return s
}

// ReferralCount returns how many users the given user has invited.
func (e *Engine) ReferralCount(ctx context.Context, id user.ID) int64 {
	if e.referrals == nil {
		return 0
	}
	n, err := e.referrals.Count(ctx, id)
	if err != nil {
		log.Printf("[engine] referral count for %d: %v", id, err)
		return 0
	}
	return n
}

func (e *Engine) persistBan(ctx context.Context, id user.ID, banned bool) {
	if e.flags == nil {
		return
	}
	if err := e.flags.SetBanned(ctx, id, banned); err != nil {
		log.Printf("[engine] persist ban flag for %d: %v", id, err)
	}
}

func (e *Engine) persistMute(ctx context.Context, id user.ID, muted bool) {
	if e.flags == nil {
		return
	}
	if err := e.flags.SetMuted(ctx, id, muted); err != nil {
		log.Printf("[engine] persist mute flag for %d: %v", id, err)
	}
}
