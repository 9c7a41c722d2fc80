package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/veil/chat-app/internal/user"
)

// Connection is a single WebSocket client with its assigned user id and
// a write mutex serializing outbound frames.
type Connection struct {
	UserID    user.ID
	Conn      net.Conn
	CreatedAt time.Time

	writeMu sync.Mutex
}

// WriteMessage sends a text frame. Safe for concurrent callers.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// Manager maps user ids to their live connections. A user has at most
// one connection; a newer one evicts the older.
type Manager struct {
	mu     sync.RWMutex
	byUser map[user.ID]*Connection
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{byUser: make(map[user.ID]*Connection)}
}

// Add registers conn and returns the connection it displaced, if any.
func (m *Manager) Add(conn *Connection) *Connection {
	m.mu.Lock()
	old := m.byUser[conn.UserID]
	m.byUser[conn.UserID] = conn
	m.mu.Unlock()
	return old
}

// Remove drops conn if it is still the registered connection for its
// user. Returns false when a newer connection already took its place.
func (m *Manager) Remove(conn *Connection) bool {
	m.mu.Lock()
	cur, ok := m.byUser[conn.UserID]
	if ok && cur == conn {
		delete(m.byUser, conn.UserID)
	} else {
		ok = false
	}
	m.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for id, or nil.
func (m *Manager) Get(id user.ID) *Connection {
	m.mu.RLock()
	conn := m.byUser[id]
	m.mu.RUnlock()
	return conn
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	n := len(m.byUser)
	m.mu.RUnlock()
	return n
}

// All returns a snapshot safe to iterate without the lock.
func (m *Manager) All() []*Connection {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.byUser))
	for _, conn := range m.byUser {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()
	return conns
}

// Broadcast writes data to every live connection. Individual write
// errors are ignored; the read loop reaps dead connections.
func (m *Manager) Broadcast(data []byte) {
	for _, conn := range m.All() {
		_ = conn.WriteMessage(data)
	}
}
