package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/veil/chat-app/internal/admin"
	"github.com/veil/chat-app/internal/chat"
	"github.com/veil/chat-app/internal/delivery"
	"github.com/veil/chat-app/internal/engine"
	"github.com/veil/chat-app/internal/protocol"
	"github.com/veil/chat-app/internal/ratelimit"
	"github.com/veil/chat-app/internal/user"
)

// HandleStore persists the public display handle announced at start.
type HandleStore interface {
	SetHandle(ctx context.Context, id user.ID, handle string) error
}

// Dispatcher routes parsed client messages to engine operations and
// writes the direct responses back to the caller's socket. Partner and
// admin notifications travel separately through the engine's deliverer.
type Dispatcher struct {
	engine  *engine.Engine
	admins  *admin.Registry
	limiter *ratelimit.Limiter
	handles HandleStore   // may be nil
	timeout time.Duration // per-command context budget
}

// NewDispatcher binds a dispatcher to its engine, admin registry, rate
// limiter and handle store.
func NewDispatcher(eng *engine.Engine, admins *admin.Registry, limiter *ratelimit.Limiter, handles HandleStore) *Dispatcher {
	return &Dispatcher{
		engine:  eng,
		admins:  admins,
		limiter: limiter,
		handles: handles,
		timeout: 5 * time.Second,
	}
}

// Dispatch is the server's onMessage callback. It parses the frame,
// answers ping inline, and routes everything else by type.
func (d *Dispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("[ws] parse error user=%d: %v", conn.UserID, err)
		d.sendError(conn, "parse_error", "invalid message format")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	switch m := msg.(type) {
	case protocol.PingMsg:
		d.reply(conn, protocol.TypePong, protocol.PongMsg{})
	case protocol.StartMsg:
		d.handleStart(ctx, conn, m)
	case protocol.AgreeMsg:
		d.result(conn, d.engine.Agree(ctx, conn.UserID))
	case protocol.FindPartnerMsg:
		d.handleFindPartner(ctx, conn, m)
	case protocol.CancelSearchMsg:
		d.result(conn, d.engine.CancelSearch(ctx, conn.UserID))
	case protocol.ChatMsg:
		d.handleChat(ctx, conn, m)
	case protocol.MediaMsg:
		d.handleMedia(ctx, conn, m)
	case protocol.RevealMsg:
		d.result(conn, d.engine.RequestReveal(ctx, conn.UserID, m.Accept))
	case protocol.LikeMsg:
		d.handleLike(ctx, conn)
	case protocol.EndChatMsg:
		d.result(conn, d.engine.EndChat(ctx, conn.UserID))
	case protocol.ReportMsg:
		d.handleReport(ctx, conn)
	case protocol.ReferralsMsg:
		d.reply(conn, protocol.TypeReferralStats, protocol.ReferralStatsMsg{
			Invited: d.engine.ReferralCount(ctx, conn.UserID),
		})
	case protocol.AdminLoginMsg:
		d.handleAdminLogin(conn, m)
	case protocol.AdminLogoutMsg:
		d.admins.Logout(conn.UserID)
	case protocol.AdminMsg:
		d.handleAdmin(ctx, conn, m)
	default:
		log.Printf("[ws] unsupported message type=%q user=%d", msgType, conn.UserID)
		d.sendError(conn, "unsupported_type", "unsupported message type")
	}
}

// OnDisconnect is the server's disconnect callback.
func (d *Dispatcher) OnDisconnect(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.engine.Disconnect(ctx, conn.UserID)
	d.admins.Logout(conn.UserID)
}

func (d *Dispatcher) handleStart(ctx context.Context, conn *Connection, m protocol.StartMsg) {
	if m.Handle != "" && d.handles != nil {
		if err := d.handles.SetHandle(ctx, conn.UserID, m.Handle); err != nil {
			log.Printf("[ws] store handle user=%d: %v", conn.UserID, err)
		}
	}
	d.result(conn, d.engine.Arrive(ctx, conn.UserID, user.ID(m.Referrer)))
}

func (d *Dispatcher) handleFindPartner(ctx context.Context, conn *Connection, m protocol.FindPartnerMsg) {
	if !d.limiter.Allow(ctx, conn.UserID, ratelimit.RuleSearch) {
		d.sendError(conn, "rate_limited", "too many search requests")
		return
	}
	d.result(conn, d.engine.StartSearch(ctx, conn.UserID, m.Interests))
}

func (d *Dispatcher) handleChat(ctx context.Context, conn *Connection, m protocol.ChatMsg) {
	if m.Text == "" {
		d.sendError(conn, "validation", "empty message")
		return
	}
	if !d.limiter.Allow(ctx, conn.UserID, ratelimit.RuleMessage) {
		d.sendError(conn, "rate_limited", "slow down")
		return
	}
	d.result(conn, d.engine.SendText(ctx, conn.UserID, m.Text))
}

func (d *Dispatcher) handleMedia(ctx context.Context, conn *Connection, m protocol.MediaMsg) {
	if m.Ref == "" {
		d.sendError(conn, "validation", "missing media reference")
		return
	}
	if !d.limiter.Allow(ctx, conn.UserID, ratelimit.RuleMessage) {
		d.sendError(conn, "rate_limited", "slow down")
		return
	}
	p := delivery.Media(delivery.Kind(m.Kind), m.Ref, m.Caption)
	d.result(conn, d.engine.SendMedia(ctx, conn.UserID, p))
}

func (d *Dispatcher) handleLike(ctx context.Context, conn *Connection) {
	outcome, err := d.engine.SendLike(ctx, conn.UserID)
	if err != nil {
		d.result(conn, err)
		return
	}
	if outcome == chat.LikeAlready {
		d.reply(conn, protocol.TypeNotice, protocol.NoticeMsg{Code: "like_already"})
	}
}

func (d *Dispatcher) handleReport(ctx context.Context, conn *Connection) {
	if !d.limiter.Allow(ctx, conn.UserID, ratelimit.RuleReport) {
		d.sendError(conn, "rate_limited", "too many reports")
		return
	}
	d.result(conn, d.engine.Report(ctx, conn.UserID))
}

func (d *Dispatcher) handleAdminLogin(conn *Connection, m protocol.AdminLoginMsg) {
	if !d.admins.Authenticate(conn.UserID, m.Password) {
		log.Printf("[ws] admin login rejected user=%d", conn.UserID)
		d.sendError(conn, "unauthorized", "wrong password")
		return
	}
	log.Printf("[ws] admin login user=%d", conn.UserID)
	d.reply(conn, protocol.TypeNotice, protocol.NoticeMsg{Code: "admin_granted"})
}

func (d *Dispatcher) handleAdmin(ctx context.Context, conn *Connection, m protocol.AdminMsg) {
	if !d.admins.IsAdmin(conn.UserID) {
		d.sendError(conn, "unauthorized", "admin access required")
		return
	}

	target := user.ID(m.Target)
	switch m.Action {
	case protocol.AdminBan:
		d.result(conn, d.engine.BanUser(ctx, target))
	case protocol.AdminUnban:
		d.result(conn, d.engine.UnbanUser(ctx, target))
	case protocol.AdminMute:
		d.result(conn, d.engine.MuteUser(ctx, target))
	case protocol.AdminUnmute:
		d.result(conn, d.engine.UnmuteUser(ctx, target))
	case protocol.AdminCloseAll:
		n := d.engine.TerminateAllChats(ctx)
		log.Printf("[ws] admin %d closed %d chats", conn.UserID, n)
	case protocol.AdminStats:
		st := d.engine.Stats(ctx)
		d.reply(conn, protocol.TypeStats, protocol.StatsMsg{
			AgreedUsers:    st.AgreedUsers,
			WaitingUsers:   st.WaitingUsers,
			ActiveChats:    st.ActiveChats,
			BannedUsers:    st.BannedUsers,
			Reports:        st.Reports,
			TotalReferrals: st.TotalReferrals,
		})
	default:
		d.sendError(conn, "validation", "unknown admin action")
	}
}

// result maps an engine error onto a client error frame. A nil error
// sends nothing; success feedback arrives as engine notices. A muted
// sender already received the engine's muted notice, so no error frame
// is added on top.
func (d *Dispatcher) result(conn *Connection, err error) {
	if err == nil || errors.Is(err, engine.ErrMutedSender) {
		return
	}

	code := "internal"
	switch {
	case errors.Is(err, engine.ErrNotAgreed):
		code = "not_agreed"
	case errors.Is(err, engine.ErrBanned):
		code = "banned"
	case errors.Is(err, engine.ErrAlreadyWaiting):
		code = "already_waiting"
	case errors.Is(err, engine.ErrAlreadyInChat):
		code = "already_in_chat"
	case errors.Is(err, engine.ErrNotInChat):
		code = "not_in_chat"
	case errors.Is(err, engine.ErrValidation):
		code = "validation"
	default:
		log.Printf("[ws] command failed user=%d: %v", conn.UserID, err)
	}
	d.sendError(conn, code, err.Error())
}

func (d *Dispatcher) reply(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[ws] build %s user=%d: %v", msgType, conn.UserID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[ws] send %s user=%d: %v", msgType, conn.UserID, err)
	}
}

func (d *Dispatcher) sendError(conn *Connection, code, message string) {
	d.reply(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
