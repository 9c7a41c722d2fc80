package chat

import (
	"errors"
	"sync"

	"github.com/veil/chat-app/internal/user"
)

// ErrConflictingState is returned by Bind when either user is already
// bound to an active chat.
var ErrConflictingState = errors.New("chat: user already bound to a chat")

// Registry maps each user to their current chat. A chat exists iff both
// parties' entries agree; Bind and Unbind update both entries under one
// lock so no half-bound state is ever observable.
type Registry struct {
	mu     sync.RWMutex
	byUser map[user.ID]*Chat
}

// NewRegistry creates an empty chat registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[user.ID]*Chat)}
}

// Bind creates a chat between a and b and stores both user mappings
// atomically. Fails with ErrConflictingState if either user already has
// an active chat; in that case nothing is mutated.
func (r *Registry) Bind(a, b user.ID) (*Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[a]; ok {
		return nil, ErrConflictingState
	}
	if _, ok := r.byUser[b]; ok {
		return nil, ErrConflictingState
	}

	c := newChat(a, b)
	r.byUser[a] = c
	r.byUser[b] = c
	return c, nil
}

// Lookup returns the user's current chat, if any.
func (r *Registry) Lookup(id user.ID) (*Chat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[id]
	return c, ok
}

// Unbind removes both parties' mappings for the chat. Idempotent: only
// entries that still point at this chat are removed, so calling Unbind
// twice (or from both parties' teardown paths) is safe.
func (r *Registry) Unbind(c *Chat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byUser[c.A]; ok && cur == c {
		delete(r.byUser, c.A)
	}
	if cur, ok := r.byUser[c.B]; ok && cur == c {
		delete(r.byUser, c.B)
	}
}

// Count returns the number of live chats.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser) / 2
}

// All returns a snapshot of the live chats, each appearing exactly once
// even though it is reachable from both parties' entries.
func (r *Registry) All() []*Chat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*Chat]struct{}, len(r.byUser)/2)
	out := make([]*Chat, 0, len(r.byUser)/2)
	for _, c := range r.byUser {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
