// Package admin implements the password-gated admin registry. Any user
// who presents the admin password is elevated for the lifetime of the
// process; logging out drops the elevation. Membership lives in memory
// only and resets on restart.
package admin

import (
	"crypto/subtle"
	"sync"

	"github.com/veil/chat-app/internal/user"
)

// Registry holds the set of currently elevated admin users.
type Registry struct {
	mu       sync.RWMutex
	password string
	ids      map[user.ID]struct{}
}

// NewRegistry creates a registry guarded by the given password.
func NewRegistry(password string) *Registry {
	return &Registry{
		password: password,
		ids:      make(map[user.ID]struct{}),
	}
}

// Authenticate elevates the user if the password matches. The comparison
// is constant-time. Returns whether elevation succeeded.
func (r *Registry) Authenticate(id user.ID, password string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.password == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(r.password)) != 1 {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Logout drops the user's elevation. Unknown users are a no-op.
func (r *Registry) Logout(id user.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

// IsAdmin reports whether the user is currently elevated.
func (r *Registry) IsAdmin(id user.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// List returns a snapshot of all elevated users.
func (r *Registry) List() []user.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]user.ID, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	return out
}
