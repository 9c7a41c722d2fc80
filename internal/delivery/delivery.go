// Package delivery defines the outbound contract between the pairing
// engine and the transport layer. The engine never talks to a socket
// directly; it hands opaque payloads to a Deliverer and resolves public
// handles through a Directory.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/veil/chat-app/internal/user"
)

// Kind discriminates the payload variants the engine can route. Media
// payloads carry an opaque reference that the transport understands; the
// engine never inspects it.
type Kind string

const (
	KindText    Kind = "text"
	KindPhoto   Kind = "photo"
	KindVideo   Kind = "video"
	KindVoice   Kind = "voice"
	KindSticker Kind = "sticker"
	KindNotice  Kind = "notice"
)

// Notice codes carried in KindNotice payloads.
const (
	NoticePartnerFound   = "partner_found"
	NoticeSearchExpired  = "search_expired"
	NoticeChatEnded      = "chat_ended"
	NoticePartnerEnded   = "partner_ended"
	NoticeRevealWaiting  = "reveal_waiting"
	NoticeRevealDeclined = "reveal_declined"
	NoticeRevealHandle   = "reveal_handle"
	NoticeLikeMutual     = "like_mutual"
	NoticeMuted          = "muted"
	NoticeBanned         = "banned"
	NoticeReferralJoined = "referral_joined"
	NoticeReport         = "report"
)

// Payload is a single deliverable item. Text holds the message body for
// text payloads, the caption for media payloads, and the human-readable
// detail for notices. Ref holds the opaque media reference. Code is set
// only for notices.
type Payload struct {
	Kind Kind   `json:"kind"`
	Code string `json:"code,omitempty"`
	Text string `json:"text,omitempty"`
	Ref  string `json:"ref,omitempty"`
}

// Text builds a plain text payload.
func Text(body string) Payload {
	return Payload{Kind: KindText, Text: body}
}

// Media builds a media payload of the given kind with an opaque
// reference and optional caption.
func Media(kind Kind, ref, caption string) Payload {
	return Payload{Kind: kind, Ref: ref, Text: caption}
}

// Notice builds a notice payload with a code and detail text.
func Notice(code, detail string) Payload {
	return Payload{Kind: KindNotice, Code: code, Text: detail}
}

// IsMedia reports whether the payload kind is one of the media variants.
func (p Payload) IsMedia() bool {
	switch p.Kind {
	case KindPhoto, KindVideo, KindVoice, KindSticker:
		return true
	}
	return false
}

// Marshal encodes the payload as JSON for transport.
func (p Payload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("delivery: marshal payload: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a payload previously produced by Marshal.
func Unmarshal(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("delivery: unmarshal payload: %w", err)
	}
	return p, nil
}

// Deliverer sends a payload to a user. Delivery is fire-and-forget from
// the engine's point of view: a failure is surfaced to the caller but
// never rolls back a state transition that already committed.
type Deliverer interface {
	Deliver(ctx context.Context, to user.ID, p Payload) error
}

// Directory resolves a user's public display handle. It is consulted
// only when both parties of a chat accepted the reveal handshake.
type Directory interface {
	DisplayHandle(ctx context.Context, id user.ID) (string, bool)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, to user.ID, p Payload) error

func (f DelivererFunc) Deliver(ctx context.Context, to user.ID, p Payload) error {
	return f(ctx, to, p)
}
