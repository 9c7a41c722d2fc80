// Package chat models one active conversation between two matched users:
// the Active/Terminated lifecycle, the reveal and like consent handshakes,
// the report flag, and a short history buffer attached to abuse reports.
// The Registry maps each user to their current chat and is the single
// place where the one-chat-per-user invariant is enforced.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veil/chat-app/internal/user"
)

// Consent is one party's slot in the reveal handshake.
type Consent uint8

const (
	ConsentUnset Consent = iota
	ConsentDecline
	ConsentAccept
)

// LikeOutcome describes the effect of recording a like.
type LikeOutcome uint8

const (
	// LikeRecorded means the like was stored and the partner has not
	// liked yet.
	LikeRecorded LikeOutcome = iota
	// LikeMutual means this like completed the handshake.
	LikeMutual
	// LikeAlready means the sender had already liked; nothing changed.
	LikeAlready
)

// HistorySize is the number of recent text messages retained per chat
// for moderator review when a report is filed.
const HistorySize = 5

// HistoryEntry is one relayed message in the chat's history buffer. From
// is anonymised to "party_a"/"party_b" before leaving the process.
type HistoryEntry struct {
	From user.ID `json:"-"`
	Text string  `json:"text"`
	Ts   int64   `json:"ts"`
}

// Chat is one conversation between two users. The party pair is
// unordered; A and B only fix the slot layout of the handshakes.
//
// Lifecycle state and handshake slots are guarded by the chat's own
// mutex so that operations on different chats proceed fully in parallel.
// Binding and unbinding go through the Registry.
type Chat struct {
	ID string
	A  user.ID
	B  user.ID

	mu         sync.Mutex
	terminated bool
	reveal     [2]Consent
	liked      [2]bool
	reportedBy user.ID // 0 = no report filed
	history    []HistoryEntry
	histPos    int
	histCount  int
}

func newChat(a, b user.ID) *Chat {
	return &Chat{
		ID:      uuid.New().String(),
		A:       a,
		B:       b,
		history: make([]HistoryEntry, HistorySize),
	}
}

// Partner returns the other party of the chat, or 0 if id is not a
// participant.
func (c *Chat) Partner(id user.ID) user.ID {
	switch id {
	case c.A:
		return c.B
	case c.B:
		return c.A
	}
	return 0
}

// IsParticipant reports whether id is one of the two parties.
func (c *Chat) IsParticipant(id user.ID) bool {
	return id == c.A || id == c.B
}

// Terminated reports whether the chat has been torn down.
func (c *Chat) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Terminate flips the chat to the terminal state. Returns true only for
// the first caller; a chat can be torn down by either party, by an
// admin bulk close, or by a ban, and all of those must converge safely.
func (c *Chat) Terminate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return false
	}
	c.terminated = true
	return true
}

// slot maps a participant to its handshake slot index.
func (c *Chat) slot(id user.ID) int {
	if id == c.A {
		return 0
	}
	return 1
}

// SetReveal records the sender's reveal choice and returns both slots
// after the update (own first). Slots are never reset; re-declaring a
// choice is idempotent and a resolved handshake may re-fire harmlessly.
func (c *Chat) SetReveal(id user.ID, accept bool) (own, other Consent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	choice := ConsentDecline
	if accept {
		choice = ConsentAccept
	}
	i := c.slot(id)
	c.reveal[i] = choice
	return c.reveal[i], c.reveal[1-i]
}

// SetLike records a like from the sender. The set is idempotent: a
// repeated like from the same party reports LikeAlready and the mutual
// transition fires at most once.
func (c *Chat) SetLike(id user.ID) LikeOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.slot(id)
	if c.liked[i] {
		return LikeAlready
	}
	c.liked[i] = true
	if c.liked[1-i] {
		return LikeMutual
	}
	return LikeRecorded
}

// SetReported records who filed a report against their partner. Only the
// first reporter is retained.
func (c *Chat) SetReported(reporter user.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reportedBy == 0 {
		c.reportedBy = reporter
	}
}

// ReportedBy returns the reporter's id, or 0 if no report was filed.
func (c *Chat) ReportedBy() user.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reportedBy
}

// RecordMessage appends a relayed text message to the chat's history
// ring. The oldest entry is overwritten once the ring is full.
func (c *Chat) RecordMessage(from user.ID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history[c.histPos] = HistoryEntry{From: from, Text: text, Ts: time.Now().Unix()}
	c.histPos = (c.histPos + 1) % HistorySize
	if c.histCount < HistorySize {
		c.histCount++
	}
}

// History returns the retained messages in chronological order, oldest
// first.
func (c *Chat) History() []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]HistoryEntry, c.histCount)
	start := (c.histPos - c.histCount + HistorySize) % HistorySize
	for i := 0; i < c.histCount; i++ {
		out[i] = c.history[(start+i)%HistorySize]
	}
	return out
}
