// Package user tracks per-user account flags for the anonymous chat
// service: terms agreement, ban and mute status, and the interest tags
// selected for the current partner search. Users are created on first
// contact and never deleted, only flagged.
package user

import "sync"

// ID is the opaque numeric identity of a user, assigned by the transport
// layer on first contact.
type ID int64

// Info is a snapshot of a user's flags.
type Info struct {
	Agreed    bool
	Banned    bool
	Muted     bool
	Interests []string
}

// Registry is the in-memory store of user flags. All methods are
// goroutine-safe.
type Registry struct {
	mu    sync.RWMutex
	users map[ID]*Info
}

// NewRegistry creates an empty user registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[ID]*Info)}
}

// Ensure creates the user record if it does not exist yet and returns a
// snapshot of its flags.
func (r *Registry) Ensure(id ID) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		u = &Info{}
		r.users[id] = u
	}
	return snapshot(u)
}

// Get returns a snapshot of the user's flags and whether the user exists.
func (r *Registry) Get(id ID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return Info{}, false
	}
	return snapshot(u), true
}

// SetAgreed records whether the user accepted the terms of use.
func (r *Registry) SetAgreed(id ID, agreed bool) {
	r.mutate(id, func(u *Info) { u.Agreed = agreed })
}

// SetBanned records the ban flag for a user.
func (r *Registry) SetBanned(id ID, banned bool) {
	r.mutate(id, func(u *Info) { u.Banned = banned })
}

// SetMuted records the mute flag for a user.
func (r *Registry) SetMuted(id ID, muted bool) {
	r.mutate(id, func(u *Info) { u.Muted = muted })
}

// SetInterests replaces the user's interest tags. Interests are ephemeral
// search metadata and are overwritten on every new search.
func (r *Registry) SetInterests(id ID, interests []string) {
	tags := make([]string, len(interests))
	copy(tags, interests)
	r.mutate(id, func(u *Info) { u.Interests = tags })
}

// IsBanned reports whether the user is currently banned. Unknown users
// are not banned.
func (r *Registry) IsBanned(id ID) bool {
	u, ok := r.Get(id)
	return ok && u.Banned
}

// IsMuted reports whether the user is currently muted.
func (r *Registry) IsMuted(id ID) bool {
	u, ok := r.Get(id)
	return ok && u.Muted
}

// HasAgreed reports whether the user accepted the terms of use.
func (r *Registry) HasAgreed(id ID) bool {
	u, ok := r.Get(id)
	return ok && u.Agreed
}

// AgreedCount returns the number of users that accepted the terms.
func (r *Registry) AgreedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, u := range r.users {
		if u.Agreed {
			n++
		}
	}
	return n
}

// BannedCount returns the number of currently banned users.
func (r *Registry) BannedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, u := range r.users {
		if u.Banned {
			n++
		}
	}
	return n
}

func (r *Registry) mutate(id ID, fn func(*Info)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		u = &Info{}
		r.users[id] = u
	}
	fn(u)
}

func snapshot(u *Info) Info {
	out := *u
	if u.Interests != nil {
		out.Interests = make([]string, len(u.Interests))
		copy(out.Interests, u.Interests)
	}
	return out
}
