package chat

import (
	"testing"

	"github.com/veil/chat-app/internal/user"
)

func TestRegistry_BindAndLookup(t *testing.T) {
	r := NewRegistry()

	c, err := r.Bind(1, 2)
	if err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if c.ID == "" {
		t.Error("bound chat should have an id")
	}

	for _, id := range []user.ID{1, 2} {
		got, ok := r.Lookup(id)
		if !ok || got != c {
			t.Errorf("Lookup(%d) = %v ok=%v", id, got, ok)
		}
	}
	if _, ok := r.Lookup(3); ok {
		t.Error("Lookup of unbound user should miss")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegistry_BindConflict(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Bind(1, 2); err != nil {
		t.Fatalf("Bind error: %v", err)
	}

	if _, err := r.Bind(1, 3); err != ErrConflictingState {
		t.Errorf("Bind(1,3) err = %v, want ErrConflictingState", err)
	}
	if _, err := r.Bind(3, 2); err != ErrConflictingState {
		t.Errorf("Bind(3,2) err = %v, want ErrConflictingState", err)
	}
	// The failed bind must not leave a half-bound entry for 3.
	if _, ok := r.Lookup(3); ok {
		t.Error("user 3 should remain unbound after failed binds")
	}
}

func TestRegistry_UnbindIdempotent(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Bind(1, 2)

	r.Unbind(c)
	if _, ok := r.Lookup(1); ok {
		t.Error("user 1 still bound after Unbind")
	}
	if _, ok := r.Lookup(2); ok {
		t.Error("user 2 still bound after Unbind")
	}

	// Rebinding one of the parties, then unbinding the old chat again,
	// must not disturb the new binding.
	c2, err := r.Bind(1, 3)
	if err != nil {
		t.Fatalf("rebind error: %v", err)
	}
	r.Unbind(c)
	if got, ok := r.Lookup(1); !ok || got != c2 {
		t.Error("stale Unbind removed the successor chat")
	}
}

func TestRegistry_AllDeduplicates(t *testing.T) {
	r := NewRegistry()
	r.Bind(1, 2)
	r.Bind(3, 4)

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All returned %d chats, want 2", len(all))
	}
	if all[0] == all[1] {
		t.Error("All returned the same chat twice")
	}
}
