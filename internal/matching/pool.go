// Package matching implements the waiting pool and the pairing logic of
// the anonymous chat service. Users who ask for a partner enter a FIFO
// pool; the matchmaker greedily drains the pool two-at-a-time, oldest
// arrivals first. Interest tags travel with each entry but never
// constrain pairing; they are reported back to the matched pair as a
// hint only.
package matching

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/veil/chat-app/internal/user"
)

// ErrAlreadyWaiting is returned by Enqueue when the user is already in
// the pool. A user appears in the pool at most once.
var ErrAlreadyWaiting = errors.New("matching: user already waiting")

// Entry is one user's position in the waiting pool. Generation is a
// pool-wide sequence number identifying this particular enqueue; a user
// who leaves and re-enters gets a fresh generation.
type Entry struct {
	User       user.ID
	Interests  []string
	EnqueuedAt time.Time
	Generation uint64
}

// Pool is the FIFO waiting pool. All methods are goroutine-safe; callers
// that need cross-structure atomicity (pool plus session registry)
// serialize at the engine level.
type Pool struct {
	mu      sync.Mutex
	seq     uint64
	order   []Entry
	present map[user.ID]struct{}
}

// NewPool creates an empty waiting pool.
func NewPool() *Pool {
	return &Pool{present: make(map[user.ID]struct{})}
}

// Enqueue appends the user to the tail of the pool with the given
// interest tags and returns the generation of the new entry. Returns
// ErrAlreadyWaiting if the user is present.
func (p *Pool) Enqueue(id user.ID, interests []string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.present[id]; ok {
		return 0, ErrAlreadyWaiting
	}

	tags := make([]string, len(interests))
	copy(tags, interests)

	p.seq++
	p.order = append(p.order, Entry{
		User:       id,
		Interests:  tags,
		EnqueuedAt: time.Now(),
		Generation: p.seq,
	})
	p.present[id] = struct{}{}
	return p.seq, nil
}

// Cancel removes the user from the pool if present. Cancellation is
// tolerant: removing an absent user is not an error, the return value
// just reports whether anything was removed.
func (p *Pool) Cancel(id user.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.present[id]; !ok {
		return false
	}
	delete(p.present, id)
	for i, e := range p.order {
		if e.User == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// CancelGeneration removes the user's entry only if it is still the one
// created by the Enqueue that returned gen. A caller holding a stale
// generation, whose entry was already dequeued, cancelled or replaced by
// a newer search, is a no-op.
func (p *Pool) CancelGeneration(id user.ID, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.present[id]; !ok {
		return false
	}
	for i, e := range p.order {
		if e.User == id {
			if e.Generation != gen {
				return false
			}
			p.order = append(p.order[:i], p.order[i+1:]...)
			delete(p.present, id)
			return true
		}
	}
	return false
}

// DequeueOldestPair removes and returns the two oldest entries. The
// boolean is false when the pool holds fewer than two users, in which
// case the pool is left untouched.
func (p *Pool) DequeueOldestPair() (Entry, Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.order) < 2 {
		return Entry{}, Entry{}, false
	}
	a, b := p.order[0], p.order[1]
	p.order = p.order[2:]
	delete(p.present, a.User)
	delete(p.present, b.User)
	return a, b, true
}

// Contains reports whether the user is currently waiting.
func (p *Pool) Contains(id user.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.present[id]
	return ok
}

// Len returns the number of waiting users.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// SharedInterests returns the sorted intersection of two interest sets.
// It backs the informational hint sent with the "partner found" notice.
func SharedInterests(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, tag := range a {
		set[tag] = struct{}{}
	}
	var shared []string
	for _, tag := range b {
		if _, ok := set[tag]; ok {
			shared = append(shared, tag)
			delete(set, tag)
		}
	}
	sort.Strings(shared)
	return shared
}
