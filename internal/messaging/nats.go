// Package messaging wraps the NATS connection used to fan engine
// deliveries out to whichever server instance holds a user's socket.
// Each connected user gets a user.<id> subject; payloads are JSON.
package messaging

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veil/chat-app/internal/delivery"
	"github.com/veil/chat-app/internal/user"
)

// Subject prefixes.
const (
	SubjectUser      = "user"            // + .<user_id>, per-user delivery inbox
	SubjectBroadcast = "admin.broadcast" // server-wide announcements
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "veil-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Bus wraps the NATS connection with per-user subscription tracking.
type Bus struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Connect dials NATS and returns a ready Bus. The initial connection
// must succeed; reconnects afterwards are handled by the client.
func Connect(cfg Config) (*Bus, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect: %w", err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Bus{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// UserSubject returns the inbox subject for id.
func UserSubject(id user.ID) string {
	return SubjectUser + "." + strconv.FormatInt(int64(id), 10)
}

// PublishToUser sends raw bytes to a user's inbox subject.
func (b *Bus) PublishToUser(id user.ID, data []byte) error {
	return b.conn.Publish(UserSubject(id), data)
}

// SubscribeUser registers a handler for a user's inbox. A second
// subscription for the same user replaces the first.
func (b *Bus) SubscribeUser(id user.ID, handler func(data []byte)) error {
	subject := UserSubject(id)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	if old, ok := b.subs[subject]; ok {
		_ = old.Unsubscribe()
	}
	b.subs[subject] = sub
	b.mu.Unlock()
	return nil
}

// UnsubscribeUser drops a user's inbox subscription. Unknown users are
// a no-op.
func (b *Bus) UnsubscribeUser(id user.ID) {
	subject := UserSubject(id)

	b.mu.Lock()
	sub, ok := b.subs[subject]
	delete(b.subs, subject)
	b.mu.Unlock()

	if !ok {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		log.Printf("[nats] unsubscribe %s: %v", subject, err)
	}
}

// PublishBroadcast sends raw bytes to the broadcast subject.
func (b *Bus) PublishBroadcast(data []byte) error {
	return b.conn.Publish(SubjectBroadcast, data)
}

// SubscribeBroadcast registers a handler for broadcast announcements.
func (b *Bus) SubscribeBroadcast(handler func(data []byte)) error {
	sub, err := b.conn.Subscribe(SubjectBroadcast, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", SubjectBroadcast, err)
	}

	b.mu.Lock()
	b.subs[SubjectBroadcast] = sub
	b.mu.Unlock()
	return nil
}

// Close drains every active subscription and the connection.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subject, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	b.subs = make(map[string]*nats.Subscription)

	if err := b.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] bus closed")
}

// InboxDeliverer publishes engine payloads to user inbox subjects. It
// lets multiple server instances share one engine cluster: the instance
// holding the socket picks the payload up from NATS.
type InboxDeliverer struct {
	bus *Bus
}

// NewInboxDeliverer returns a Deliverer that publishes through bus.
func NewInboxDeliverer(bus *Bus) *InboxDeliverer {
	return &InboxDeliverer{bus: bus}
}

// Deliver marshals p and publishes it to the recipient's inbox subject.
func (d *InboxDeliverer) Deliver(_ context.Context, to user.ID, p delivery.Payload) error {
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("messaging: marshal payload for %d: %w", to, err)
	}
	if err := d.bus.PublishToUser(to, data); err != nil {
		return fmt.Errorf("messaging: publish to %d: %w", to, err)
	}
	return nil
}
