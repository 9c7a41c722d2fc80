// Package engine is the matchmaking-and-session core of the anonymous
// chat service. It owns the waiting pool, the chat registry and the
// per-chat handshake state, and exposes the command surface the
// transport layer calls into: search, relay, reveal, like, report,
// end-chat, plus the admin operations.
//
// Concurrency model: one engine mutex serializes every transition that
// touches the waiting pool and the chat registry together (enqueue,
// pairing, teardown, ban), so a user is never observable both waiting
// and bound. Per-chat handshake state is guarded by the chat's own lock;
// operations on different chats run fully in parallel. Deliveries are
// collected while locked and dispatched after release; a delivery
// failure never rolls back a committed transition.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veil/chat-app/internal/admin"
	"github.com/veil/chat-app/internal/chat"
	"github.com/veil/chat-app/internal/delivery"
	"github.com/veil/chat-app/internal/matching"
	"github.com/veil/chat-app/internal/metrics"
	"github.com/veil/chat-app/internal/user"
)

// Counters is the persistent per-user counter store (likes, report
// tallies). Increments are fire-and-forget from the engine's point of
// view: failures are logged, never rolled back into session state.
type Counters interface {
	IncrementLike(ctx context.Context, id user.ID) (int64, error)
	IncrementReport(ctx context.Context, id user.ID) (int64, error)
}

// ReportRecord is the durable form of one abuse report.
type ReportRecord struct {
	Reporter user.ID
	Reported user.ID
	ChatID   string
	Messages []chat.HistoryEntry
	At       time.Time
}

// ReportSink persists abuse reports for moderator review.
type ReportSink interface {
	Record(ctx context.Context, r ReportRecord) error
}

// Referrals records who invited whom and keeps per-referrer counts.
type Referrals interface {
	// Invite records that invitee arrived through referrer's link.
	// Returns false if the invitee was already attributed.
	Invite(ctx context.Context, invitee, referrer user.ID) (bool, error)
	Count(ctx context.Context, id user.ID) (int64, error)
	Total(ctx context.Context) (int64, error)
}

// Flags is the durable ban/mute flag store consulted on first contact
// and updated on admin actions.
type Flags interface {
	SetBanned(ctx context.Context, id user.ID, banned bool) error
	SetMuted(ctx context.Context, id user.ID, muted bool) error
	Load(ctx context.Context, id user.ID) (banned, muted bool, err error)
}

// Config wires the engine's collaborators. Deliverer is required; the
// persistence collaborators may be nil, in which case the corresponding
// side effects are skipped.
type Config struct {
	Deliverer delivery.Deliverer
	Directory delivery.Directory
	Admins    *admin.Registry
	Counters  Counters
	Reports   ReportSink
	Referrals Referrals
	Flags     Flags

	// SearchTimeout is how long a user waits in the pool before the
	// search expires. Zero means matching.DefaultSearchTimeout.
	SearchTimeout time.Duration
}

// Engine coordinates the user registry, waiting pool and chat registry.
type Engine struct {
	mu     sync.Mutex // serializes pool+registry transitions
	users  *user.Registry
	pool   *matching.Pool
	chats  *chat.Registry
	timers *matching.TimerSet

	deliverer delivery.Deliverer
	directory delivery.Directory
	admins    *admin.Registry
	counters  Counters
	reports   ReportSink
	referrals Referrals
	flags     Flags

	searchTimeout time.Duration
	reportCount   atomic.Int64
}

// outbound is one pending delivery collected under the engine lock.
type outbound struct {
	to user.ID
	p  delivery.Payload
}

// New creates an engine from the given configuration.
func New(cfg Config) *Engine {
	timeout := cfg.SearchTimeout
	if timeout == 0 {
		timeout = matching.DefaultSearchTimeout
	}
	return &Engine{
		users:         user.NewRegistry(),
		pool:          matching.NewPool(),
		chats:         chat.NewRegistry(),
		timers:        matching.NewTimerSet(),
		deliverer:     cfg.Deliverer,
		directory:     cfg.Directory,
		admins:        cfg.Admins,
		counters:      cfg.Counters,
		reports:       cfg.Reports,
		referrals:     cfg.Referrals,
		flags:         cfg.Flags,
		searchTimeout: timeout,
	}
}

// Users exposes the user registry for the transport layer (flag lookups
// on inbound events).
func (e *Engine) Users() *user.Registry { return e.users }

// ---------------------------------------------------------------------------
// Arrival and agreement
// ---------------------------------------------------------------------------

// Arrive handles a user's first contact (or re-contact). It creates the
// user record, restores durable ban/mute flags, resets the agreement so
// the terms must be re-accepted, and attributes the referral if the user
// arrived through an invite link (referrer != 0). Self-referrals and
// repeat attributions are ignored.
func (e *Engine) Arrive(ctx context.Context, id, referrer user.ID) error {
	e.users.Ensure(id)

	if e.flags != nil {
		banned, muted, err := e.flags.Load(ctx, id)
		if err != nil {
			log.Printf("[engine] load flags for %d: %v", id, err)
		} else {
			e.users.SetBanned(id, banned)
			e.users.SetMuted(id, muted)
		}
	}

	if e.users.IsBanned(id) {
		return ErrBanned
	}

	e.users.SetAgreed(id, false)

	if referrer != 0 && referrer != id && e.referrals != nil {
		recorded, err := e.referrals.Invite(ctx, id, referrer)
		if err != nil {
			log.Printf("[engine] record referral %d<-%d: %v", id, referrer, err)
		} else if recorded {
			e.send(ctx, []outbound{{referrer, delivery.Notice(delivery.NoticeReferralJoined, "")}})
			log.Printf("[engine] user %d invited by %d", id, referrer)
		}
	}
	return nil
}

// Agree records the user's acceptance of the terms of use.
func (e *Engine) Agree(ctx context.Context, id user.ID) error {
	e.users.Ensure(id)
	if e.users.IsBanned(id) {
		return ErrBanned
	}
	e.users.SetAgreed(id, true)
	return nil
}

// gate rejects commands from banned users and from users that have not
// accepted the terms.
func (e *Engine) gate(id user.ID) error {
	if e.users.IsBanned(id) {
		return ErrBanned
	}
	if !e.users.HasAgreed(id) {
		return ErrNotAgreed
	}
	return nil
}

// ---------------------------------------------------------------------------
// Search and pairing
// ---------------------------------------------------------------------------

// StartSearch enters the user into the waiting pool with the given
// interest tags, arms the search timeout, and immediately attempts to
// drain the pool. Fails with ErrAlreadyInChat or ErrAlreadyWaiting if
// the user is not unattached.
func (e *Engine) StartSearch(ctx context.Context, id user.ID, interests []string) error {
	if err := e.gate(id); err != nil {
		return err
	}

	e.mu.Lock()
	if _, ok := e.chats.Lookup(id); ok {
		e.mu.Unlock()
		return ErrAlreadyInChat
	}
	gen, err := e.pool.Enqueue(id, interests)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.users.SetInterests(id, interests)
	e.timers.Arm(id, e.searchTimeout, func(uid user.ID) {
		e.onSearchTimeout(uid, gen)
	})
	outs := e.matchLocked()
	e.mu.Unlock()

	metrics.WaitingUsers.Set(float64(e.pool.Len()))
	e.send(ctx, outs)
	return nil
}

// CancelSearch removes the user from the waiting pool. Cancellation is
// tolerant: cancelling a search that is not running is a no-op.
func (e *Engine) CancelSearch(ctx context.Context, id user.ID) error {
	e.mu.Lock()
	removed := e.pool.Cancel(id)
	e.mu.Unlock()
	e.timers.Disarm(id)

	if removed {
		metrics.WaitingUsers.Set(float64(e.pool.Len()))
		log.Printf("[engine] search cancelled for %d", id)
	}
	return nil
}

// matchLocked greedily pairs the oldest waiting users until fewer than
// two remain. Caller holds the engine mutex. Every successful pairing
// removes exactly two users from the pool, disarms their timeouts, and
// binds them to exactly one new chat.
func (e *Engine) matchLocked() []outbound {
	var outs []outbound
	for {
		a, b, ok := e.pool.DequeueOldestPair()
		if !ok {
			return outs
		}
		e.timers.Disarm(a.User)
		e.timers.Disarm(b.User)

		c, err := e.chats.Bind(a.User, b.User)
		if err != nil {
			// Cannot happen while the enqueue precondition holds; skip
			// the pair rather than wedge the pool.
			log.Printf("[engine] bind %d/%d: %v", a.User, b.User, err)
			continue
		}

		metrics.MatchesTotal.Inc()
		metrics.ActiveChats.Set(float64(e.chats.Count()))
		log.Printf("[engine] paired %d and %d chat=%s", a.User, b.User, c.ID)

		hint := strings.Join(matching.SharedInterests(a.Interests, b.Interests), ", ")
		outs = append(outs,
			outbound{a.User, delivery.Notice(delivery.NoticePartnerFound, hint)},
			outbound{b.User, delivery.Notice(delivery.NoticePartnerFound, hint)},
		)
	}
}

// onSearchTimeout fires when a user's search timeout elapses. gen pins
// the callback to the enqueue it was armed for: a callback that was
// already in flight when the search was cancelled or matched finds a
// missing or newer entry and is a silent no-op, so it can never evict a
// fresh search started in the meantime.
func (e *Engine) onSearchTimeout(id user.ID, gen uint64) {
	e.mu.Lock()
	removed := e.pool.CancelGeneration(id, gen)
	e.mu.Unlock()

	if !removed {
		return
	}
	metrics.WaitingUsers.Set(float64(e.pool.Len()))
	metrics.SearchTimeoutsTotal.Inc()
	log.Printf("[engine] search expired for %d", id)
	e.send(context.Background(), []outbound{{id, delivery.Notice(delivery.NoticeSearchExpired, "")}})
}

// ---------------------------------------------------------------------------
// Relay
// ---------------------------------------------------------------------------

// SendText relays a text message to the sender's partner. The message is
// recorded in the chat's history buffer for report snapshots. A delivery
// failure is returned to the caller but the relay state is untouched.
func (e *Engine) SendText(ctx context.Context, from user.ID, text string) error {
	c, err := e.relayChat(ctx, from)
	if err != nil {
		return err
	}
	c.RecordMessage(from, text)
	metrics.RelayedTotal.WithLabelValues(string(delivery.KindText)).Inc()
	return e.deliverer.Deliver(ctx, c.Partner(from), delivery.Text(text))
}

// SendMedia relays a media payload (photo, video, voice or sticker)
// unchanged to the sender's partner. The reference is opaque to the
// engine.
func (e *Engine) SendMedia(ctx context.Context, from user.ID, p delivery.Payload) error {
	if !p.IsMedia() {
		return ErrValidation
	}
	c, err := e.relayChat(ctx, from)
	if err != nil {
		return err
	}
	metrics.RelayedTotal.WithLabelValues(string(p.Kind)).Inc()
	return e.deliverer.Deliver(ctx, c.Partner(from), p)
}

// relayChat performs the shared relay preconditions: sender must be in
// an active chat and not muted. A muted sender gets the payload dropped
// and a notice echoed back.
func (e *Engine) relayChat(ctx context.Context, from user.ID) (*chat.Chat, error) {
	if err := e.gate(from); err != nil {
		return nil, err
	}
	c, ok := e.chats.Lookup(from)
	if !ok || c.Terminated() {
		return nil, ErrNotInChat
	}
	if e.users.IsMuted(from) {
		e.send(ctx, []outbound{{from, delivery.Notice(delivery.NoticeMuted, "")}})
		return nil, ErrMutedSender
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Reveal handshake
// ---------------------------------------------------------------------------

// RequestReveal applies the sender's choice to the reveal handshake.
// While the partner's slot is unset the sender is told to wait; once
// both slots are set, a double accept discloses both handles and any
// decline notifies both parties. Slots are never reset, so re-declaring
// is idempotent and a resolved double accept re-fires the disclosure.
func (e *Engine) RequestReveal(ctx context.Context, from user.ID, accept bool) error {
	if err := e.gate(from); err != nil {
		return err
	}
	c, ok := e.chats.Lookup(from)
	if !ok || c.Terminated() {
		return ErrNotInChat
	}

	partner := c.Partner(from)
	own, other := c.SetReveal(from, accept)

	var outs []outbound
	switch {
	case other == chat.ConsentUnset:
		outs = append(outs, outbound{from, delivery.Notice(delivery.NoticeRevealWaiting, "")})
	case own == chat.ConsentAccept && other == chat.ConsentAccept:
		outs = append(outs,
			outbound{from, delivery.Notice(delivery.NoticeRevealHandle, e.handleOf(ctx, partner))},
			outbound{partner, delivery.Notice(delivery.NoticeRevealHandle, e.handleOf(ctx, from))},
		)
	default:
		outs = append(outs,
			outbound{from, delivery.Notice(delivery.NoticeRevealDeclined, "")},
			outbound{partner, delivery.Notice(delivery.NoticeRevealDeclined, "")},
		)
	}
	e.send(ctx, outs)
	return nil
}

// handleOf resolves a user's display handle, falling back to a fixed
// placeholder when the directory has none.
func (e *Engine) handleOf(ctx context.Context, id user.ID) string {
	if e.directory != nil {
		if h, ok := e.directory.DisplayHandle(ctx, id); ok {
			return h
		}
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Like handshake
// ---------------------------------------------------------------------------

// SendLike records a like from the sender. On a mutual like both
// persistent counters are incremented exactly once and both parties are
// notified. A repeated like from the same sender reports
// chat.LikeAlready without incrementing anything; that outcome is
// informational, not an error.
func (e *Engine) SendLike(ctx context.Context, from user.ID) (chat.LikeOutcome, error) {
	if err := e.gate(from); err != nil {
		return 0, err
	}
	c, ok := e.chats.Lookup(from)
	if !ok || c.Terminated() {
		return 0, ErrNotInChat
	}

	outcome := c.SetLike(from)
	if outcome != chat.LikeMutual {
		return outcome, nil
	}

	partner := c.Partner(from)
	if e.counters != nil {
		if _, err := e.counters.IncrementLike(ctx, from); err != nil {
			log.Printf("[engine] increment like for %d: %v", from, err)
		}
		if _, err := e.counters.IncrementLike(ctx, partner); err != nil {
			log.Printf("[engine] increment like for %d: %v", partner, err)
		}
	}
	metrics.MutualLikesTotal.Inc()
	e.send(ctx, []outbound{
		{from, delivery.Notice(delivery.NoticeLikeMutual, "")},
		{partner, delivery.Notice(delivery.NoticeLikeMutual, "")},
	})
	return outcome, nil
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

// Report flags the sender's current partner. The report is persisted
// with a snapshot of the recent messages, the partner's persistent
// report counter is incremented, and every admin receives a notification
// carrying the reporter id and handle, the reported id, and the current
// count. The chat keeps running; acting on reports is admin policy.
func (e *Engine) Report(ctx context.Context, from user.ID) error {
	if err := e.gate(from); err != nil {
		return err
	}
	c, ok := e.chats.Lookup(from)
	if !ok || c.Terminated() {
		return ErrNotInChat
	}

	reported := c.Partner(from)
	c.SetReported(from)
	e.reportCount.Add(1)
	metrics.ReportsTotal.Inc()

	var count int64
	if e.counters != nil {
		n, err := e.counters.IncrementReport(ctx, reported)
		if err != nil {
			log.Printf("[engine] increment report count for %d: %v", reported, err)
		} else {
			count = n
		}
	}

	if e.reports != nil {
		rec := ReportRecord{
			Reporter: from,
			Reported: reported,
			ChatID:   c.ID,
			Messages: c.History(),
			At:       time.Now(),
		}
		if err := e.reports.Record(ctx, rec); err != nil {
			log.Printf("[engine] persist report %d->%d: %v", from, reported, err)
		}
	}

	if e.admins != nil {
		detail := fmt.Sprintf("reporter=%d handle=%s reported=%d reports=%d",
			from, e.handleOf(ctx, from), reported, count)
		var outs []outbound
		for _, adminID := range e.admins.List() {
			outs = append(outs, outbound{adminID, delivery.Notice(delivery.NoticeReport, detail)})
		}
		e.send(ctx, outs)
	}

	log.Printf("[engine] report filed by %d against %d chat=%s", from, reported, c.ID)
	return nil
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// EndChat terminates the user's current chat. The initiator is told the
// chat ended; the partner is told the other side left. Both return to
// the unattached state.
func (e *Engine) EndChat(ctx context.Context, id user.ID) error {
	if err := e.gate(id); err != nil {
		return err
	}

	e.mu.Lock()
	c, ok := e.chats.Lookup(id)
	if !ok {
		e.mu.Unlock()
		return ErrNotInChat
	}
	outs := e.terminateLocked(c, id, true)
	e.mu.Unlock()

	e.send(ctx, outs)
	return nil
}

// Disconnect cleans up after a user's transport connection drops: a
// running search is cancelled and an active chat is terminated with the
// partner notified. The departed user receives nothing.
func (e *Engine) Disconnect(ctx context.Context, id user.ID) {
	e.timers.Disarm(id)

	e.mu.Lock()
	removed := e.pool.Cancel(id)
	var outs []outbound
	if c, ok := e.chats.Lookup(id); ok {
		outs = e.terminateLocked(c, id, false)
	}
	e.mu.Unlock()

	if removed {
		metrics.WaitingUsers.Set(float64(e.pool.Len()))
	}
	e.send(ctx, outs)
}

// terminateLocked tears the chat down exactly once. Caller holds the
// engine mutex. If the chat was already terminated only the registry
// unbind is repeated (idempotent) and no notifications are emitted, so
// concurrent teardown paths converge on a single notification pair.
// When notifyInitiator is false the initiator receives nothing (used
// for disconnects and bans).
func (e *Engine) terminateLocked(c *chat.Chat, initiator user.ID, notifyInitiator bool) []outbound {
	first := c.Terminate()
	e.chats.Unbind(c)
	if !first {
		return nil
	}

	metrics.ActiveChats.Set(float64(e.chats.Count()))
	log.Printf("[engine] chat %s terminated by %d", c.ID, initiator)

	var outs []outbound
	if c.IsParticipant(initiator) {
		if notifyInitiator {
			outs = append(outs, outbound{initiator, delivery.Notice(delivery.NoticeChatEnded, "")})
		}
		outs = append(outs, outbound{c.Partner(initiator), delivery.Notice(delivery.NoticePartnerEnded, "")})
	} else {
		// Closed from outside the pair (admin bulk close).
		outs = append(outs,
			outbound{c.A, delivery.Notice(delivery.NoticePartnerEnded, "")},
			outbound{c.B, delivery.Notice(delivery.NoticePartnerEnded, "")},
		)
	}
	return outs
}

// ---------------------------------------------------------------------------
// Delivery
// ---------------------------------------------------------------------------

// send dispatches collected notifications. Failures are logged and
// swallowed: notification delivery never affects engine state.
func (e *Engine) send(ctx context.Context, outs []outbound) {
	if e.deliverer == nil {
		return
	}
	for _, o := range outs {
		if err := e.deliverer.Deliver(ctx, o.to, o.p); err != nil {
			log.Printf("[engine] deliver %s to %d: %v", o.p.Kind, o.to, err)
		}
	}
}
