// Package ws serves the WebSocket front end. Each client gets a
// dedicated read goroutine; engine deliveries arrive over the NATS
// inbox subject for the client's user id and are written back as
// protocol frames.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/veil/chat-app/internal/delivery"
	"github.com/veil/chat-app/internal/messaging"
	"github.com/veil/chat-app/internal/metrics"
	"github.com/veil/chat-app/internal/protocol"
	"github.com/veil/chat-app/internal/user"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string
	MaxConnections int
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration // max silence before a connection is reaped
}

// DefaultServerConfig returns sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxConnections: 50000,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    5 * time.Minute,
	}
}

// Server upgrades HTTP connections to WebSocket and runs one read
// goroutine per client.
type Server struct {
	config       ServerConfig
	conns        *Manager
	bus          *messaging.Bus // nil in single-instance deployments without NATS
	onMessage    func(conn *Connection, data []byte)
	onDisconnect func(conn *Connection)
	httpServer   *http.Server
	nextID       atomic.Int64
	startedAt    time.Time
}

// NewServer creates a Server. onMessage is called from the connection's
// read goroutine for every complete text frame.
func NewServer(config ServerConfig, bus *messaging.Bus, onMessage func(conn *Connection, data []byte)) *Server {
	s := &Server{
		config:    config,
		conns:     NewManager(),
		bus:       bus,
		onMessage: onMessage,
	}
	// Seed the id counter from the clock so ids from a restarted server
	// do not collide with ids persisted in Redis by a previous run.
	s.nextID.Store(time.Now().Unix() << 20)
	return s
}

// SetOnDisconnect registers a callback invoked after a connection is
// removed from the manager.
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// Connections exposes the connection manager.
func (s *Server) Connections() *Manager {
	return s.conns
}

// Start configures the HTTP routes and blocks on ListenAndServe.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	log.Printf("[ws] listening on %s (max_conns=%d)", s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server: %w", err)
	}
	return nil
}

// handleUpgrade upgrades the request and registers the connection. A
// returning client may pin its identity with the uid query parameter;
// everyone else gets a fresh id.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	uid := s.resolveUserID(r)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	c := &Connection{
		UserID:    uid,
		Conn:      conn,
		CreatedAt: time.Now(),
	}

	if old := s.conns.Add(c); old != nil {
		log.Printf("[ws] user=%d reconnected, evicting stale connection", uid)
		old.Close()
	}

	if s.bus != nil {
		if err := s.bus.SubscribeUser(uid, func(data []byte) {
			s.forwardInbox(c, data)
		}); err != nil {
			log.Printf("[ws] inbox subscribe user=%d: %v", uid, err)
		}
	}

	welcome, err := protocol.NewServerMessage(protocol.TypeWelcome, protocol.WelcomeMsg{UserID: int64(uid)})
	if err != nil {
		log.Printf("[ws] build welcome user=%d: %v", uid, err)
	} else if err := c.WriteMessage(welcome); err != nil {
		log.Printf("[ws] send welcome user=%d: %v", uid, err)
	}

	log.Printf("[ws] new connection user=%d (total=%d)", uid, s.conns.Count())

	go s.readLoop(c)
}

// resolveUserID honours a positive uid query parameter and falls back
// to the server's id counter.
func (s *Server) resolveUserID(r *http.Request) user.ID {
	if raw := r.URL.Query().Get("uid"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return user.ID(id)
		}
	}
	return user.ID(s.nextID.Add(1))
}

// readLoop reads frames until the connection dies, answering control
// frames inline and handing data frames to onMessage.
func (s *Server) readLoop(c *Connection) {
	defer s.removeConnection(c)

	for {
		if s.config.IdleTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}

		if header.OpCode.IsControl() {
			switch header.OpCode {
			case ws.OpClose:
				return
			case ws.OpPing:
				c.writeMu.Lock()
				err = wsutil.WriteServerMessage(c.Conn, ws.OpPong, nil)
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
			// Pong frames need no reply.
			if _, err := io.Copy(io.Discard, reader); err != nil {
				return
			}
			continue
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return
			}
		}
		if len(data) == 0 {
			continue
		}

		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// removeConnection unregisters c and runs the disconnect callback. Only
// the goroutine that actually removed the connection notifies, so an
// evicted stale connection does not tear down its successor's state.
func (s *Server) removeConnection(c *Connection) {
	if !s.conns.Remove(c) {
		return
	}

	if s.bus != nil {
		s.bus.UnsubscribeUser(c.UserID)
	}
	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}

	log.Printf("[ws] connection closed user=%d (total=%d)", c.UserID, s.conns.Count())
}

// forwardInbox converts an inbox payload into a protocol frame and
// writes it to the socket.
func (s *Server) forwardInbox(c *Connection, data []byte) {
	p, err := delivery.Unmarshal(data)
	if err != nil {
		log.Printf("[ws] inbox decode user=%d: %v", c.UserID, err)
		return
	}

	frame, err := PayloadFrame(p)
	if err != nil {
		log.Printf("[ws] inbox encode user=%d: %v", c.UserID, err)
		return
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err = c.WriteMessage(frame)
	_ = c.Conn.SetWriteDeadline(time.Time{})
	if err != nil {
		log.Printf("[ws] inbox write user=%d: %v", c.UserID, err)
	}
}

// PayloadFrame renders an engine payload as a client-facing protocol
// message. Notices map to notice frames, everything else to relayed
// chat frames.
func PayloadFrame(p delivery.Payload) ([]byte, error) {
	if p.Kind == delivery.KindNotice {
		return protocol.NewServerMessage(protocol.TypeNotice, protocol.NoticeMsg{
			Code: p.Code,
			Text: p.Text,
		})
	}
	return protocol.NewServerMessage(protocol.TypeMessage, protocol.ServerChatMsg{
		Kind: string(p.Kind),
		Text: p.Text,
		Ref:  p.Ref,
	})
}

// handleHealth reports liveness plus connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown stops the listener and closes every live connection.
func (s *Server) Shutdown() error {
	log.Println("[ws] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("[ws] http shutdown: %v", err)
		}
	}

	for _, c := range s.conns.All() {
		s.removeConnection(c)
	}

	log.Printf("[ws] server stopped")
	return nil
}

// Direct is a Deliverer that writes payloads straight to local sockets,
// for deployments without NATS. Payloads for users connected elsewhere
// are dropped.
type Direct struct {
	conns *Manager
	cfg   ServerConfig
}

// DirectDeliverer returns a Deliverer backed by the server's own
// connection manager.
func (s *Server) DirectDeliverer() *Direct {
	return &Direct{conns: s.conns, cfg: s.config}
}

// Deliver writes p to the recipient's socket if it is local.
func (d *Direct) Deliver(_ context.Context, to user.ID, p delivery.Payload) error {
	c := d.conns.Get(to)
	if c == nil {
		return fmt.Errorf("ws: user %d not connected", to)
	}

	frame, err := PayloadFrame(p)
	if err != nil {
		return err
	}

	if d.cfg.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout))
	}
	err = c.WriteMessage(frame)
	_ = c.Conn.SetWriteDeadline(time.Time{})
	if err != nil {
		return fmt.Errorf("ws: write to %d: %w", to, err)
	}
	return nil
}
