// Package protocol defines the WebSocket message types exchanged between
// the client and the chat server. All messages are JSON with a type
// discriminator in a common envelope.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server message types.
const (
	TypeStart        = "start"
	TypeAgree        = "agree"
	TypeFindPartner  = "find_partner"
	TypeCancelSearch = "cancel_search"
	TypeMessage      = "message"
	TypeMedia        = "media"
	TypeReveal       = "reveal"
	TypeLike         = "like"
	TypeEndChat      = "end_chat"
	TypeReport       = "report"
	TypeReferrals    = "referrals"
	TypeAdminLogin   = "admin_login"
	TypeAdminLogout  = "admin_logout"
	TypeAdmin        = "admin"
	TypePing         = "ping"
)

// Server -> Client message types.
const (
	TypeWelcome       = "welcome"
	TypeNotice        = "notice"
	TypeStats         = "stats"
	TypeReferralStats = "referral_stats"
	TypeError         = "error"
	TypePong          = "pong"
)

// Admin actions carried in AdminMsg.
const (
	AdminBan      = "ban"
	AdminUnban    = "unban"
	AdminMute     = "mute"
	AdminUnmute   = "unmute"
	AdminCloseAll = "close_all"
	AdminStats    = "stats"
)

// Envelope holds the message type and the raw JSON for deferred parsing
// into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the payload can be decoded later into the right struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// StartMsg is the first-contact message. Referrer is the inviter's id
// when the client arrived through an invite link, zero otherwise.
// Handle is the optional public name disclosed on a mutual reveal.
type StartMsg struct {
	Type     string `json:"type"`
	Referrer int64  `json:"referrer,omitempty"`
	Handle   string `json:"handle,omitempty"`
}

// AgreeMsg accepts the terms of use.
type AgreeMsg struct {
	Type string `json:"type"`
}

// FindPartnerMsg enters the waiting pool with optional interest tags.
type FindPartnerMsg struct {
	Type      string   `json:"type"`
	Interests []string `json:"interests,omitempty"`
}

// CancelSearchMsg leaves the waiting pool.
type CancelSearchMsg struct {
	Type string `json:"type"`
}

// ChatMsg is a text message for the current partner.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MediaMsg is a media item for the current partner. Kind is one of
// photo, video, voice, sticker; Ref is the transport-level reference.
type MediaMsg struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Ref     string `json:"ref"`
	Caption string `json:"caption,omitempty"`
}

// RevealMsg sets the sender's slot in the reveal handshake.
type RevealMsg struct {
	Type   string `json:"type"`
	Accept bool   `json:"accept"`
}

// LikeMsg records a like for the current partner.
type LikeMsg struct {
	Type string `json:"type"`
}

// EndChatMsg terminates the current chat.
type EndChatMsg struct {
	Type string `json:"type"`
}

// ReportMsg files a report against the current partner.
type ReportMsg struct {
	Type string `json:"type"`
}

// ReferralsMsg requests the caller's referral statistics.
type ReferralsMsg struct {
	Type string `json:"type"`
}

// AdminLoginMsg requests admin elevation with the panel password.
type AdminLoginMsg struct {
	Type     string `json:"type"`
	Password string `json:"password"`
}

// AdminLogoutMsg drops admin elevation.
type AdminLogoutMsg struct {
	Type string `json:"type"`
}

// AdminMsg is an admin panel operation. Target is required for the
// per-user actions and ignored for close_all and stats.
type AdminMsg struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Target int64  `json:"target,omitempty"`
}

// PingMsg is a client keepalive.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// WelcomeMsg is sent once per connection and carries the numeric user id
// assigned by the server.
type WelcomeMsg struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

// NoticeMsg is an engine notification (partner found, chat ended,
// reveal outcome, ...). Code identifies the event; Text carries the
// optional detail, such as the revealed handle or shared interests.
type NoticeMsg struct {
	Type string `json:"type"`
	Code string `json:"code"`
	Text string `json:"text,omitempty"`
}

// ServerChatMsg is a relayed partner payload. Kind mirrors the relayed
// payload kind; Ref is set for media.
type ServerChatMsg struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
	Ref  string `json:"ref,omitempty"`
}

// StatsMsg is the admin statistics snapshot.
type StatsMsg struct {
	Type           string `json:"type"`
	AgreedUsers    int    `json:"agreed_users"`
	WaitingUsers   int    `json:"waiting_users"`
	ActiveChats    int    `json:"active_chats"`
	BannedUsers    int    `json:"banned_users"`
	Reports        int64  `json:"reports"`
	TotalReferrals int64  `json:"total_referrals"`
}

// ReferralStatsMsg reports the caller's invite count.
type ReferralStatsMsg struct {
	Type    string `json:"type"`
	Invited int64  `json:"invited"`
}

// ErrorMsg communicates an error condition to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client
// message. An error is returned for unknown or server-only types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeStart:
		var m StartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAgree:
		var m AgreeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFindPartner:
		var m FindPartnerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCancelSearch:
		var m CancelSearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMedia:
		var m MediaMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReveal:
		var m RevealMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLike:
		var m LikeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEndChat:
		var m EndChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReferrals:
		var m ReferralsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminLogin:
		var m AdminLoginMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminLogout:
		var m AdminLogoutMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdmin:
		var m AdminMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage marshals a server payload struct and injects the type
// discriminator under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal payload into map: %w", err)
	}
	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal server message: %w", err)
	}
	return out, nil
}
