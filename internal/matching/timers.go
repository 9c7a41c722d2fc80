package matching

import (
	"sync"
	"time"

	"github.com/veil/chat-app/internal/user"
)

// DefaultSearchTimeout is how long a user may wait in the pool before
// the search is cancelled and a timeout notice is emitted.
const DefaultSearchTimeout = 120 * time.Second

// TimerSet manages one cancellable deferred event per user. Arm and
// Disarm are race-free with respect to a concurrently firing timer: a
// timer that fires after it was disarmed (or replaced) is a silent
// no-op, never an error.
type TimerSet struct {
	mu     sync.Mutex
	timers map[user.ID]*time.Timer
}

// NewTimerSet creates an empty timer set.
func NewTimerSet() *TimerSet {
	return &TimerSet{timers: make(map[user.ID]*time.Timer)}
}

// Arm schedules fn to run for the user after d. Any previously armed
// timer for the same user is replaced. fn runs on the timer goroutine
// only if the timer is still the current one for the user at fire time.
func (ts *TimerSet) Arm(id user.ID, d time.Duration, fn func(user.ID)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if old, ok := ts.timers[id]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		if ts.consume(id, t) {
			fn(id)
		}
	})
	ts.timers[id] = t
}

// Disarm cancels the user's pending timer if one is armed. Returns true
// if a timer was cancelled before firing.
func (ts *TimerSet) Disarm(id user.ID) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t, ok := ts.timers[id]
	if !ok {
		return false
	}
	delete(ts.timers, id)
	return t.Stop()
}

// Len returns the number of armed timers.
func (ts *TimerSet) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}

// consume atomically checks that the firing timer is still the current
// one for the user and removes it. A timer that lost the race to Disarm
// or to a newer Arm returns false and must not run its callback.
func (ts *TimerSet) consume(id user.ID, t *time.Timer) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	cur, ok := ts.timers[id]
	if !ok || cur != t {
		return false
	}
	delete(ts.timers, id)
	return true
}
