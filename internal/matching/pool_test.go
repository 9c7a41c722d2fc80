package matching

import (
	"testing"

	"github.com/veil/chat-app/internal/user"
)

func TestPool_EnqueueAndDequeueFIFO(t *testing.T) {
	p := NewPool()
	for _, id := range []user.ID{1, 2, 3, 4} {
		if _, err := p.Enqueue(id, nil); err != nil {
			t.Fatalf("Enqueue(%d) error: %v", id, err)
		}
	}

	a, b, ok := p.DequeueOldestPair()
	if !ok {
		t.Fatal("expected a pair")
	}
	if a.User != 1 || b.User != 2 {
		t.Errorf("expected pair (1,2), got (%d,%d)", a.User, b.User)
	}

	a, b, ok = p.DequeueOldestPair()
	if !ok {
		t.Fatal("expected a second pair")
	}
	if a.User != 3 || b.User != 4 {
		t.Errorf("expected pair (3,4), got (%d,%d)", a.User, b.User)
	}

	if _, _, ok := p.DequeueOldestPair(); ok {
		t.Error("expected empty pool to yield no pair")
	}
}

func TestPool_EnqueueDuplicate(t *testing.T) {
	p := NewPool()
	if _, err := p.Enqueue(7, nil); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := p.Enqueue(7, nil); err != ErrAlreadyWaiting {
		t.Errorf("expected ErrAlreadyWaiting, got %v", err)
	}
	if p.Len() != 1 {
		t.Errorf("expected pool length 1, got %d", p.Len())
	}
}

func TestPool_CancelRemovesFromOrder(t *testing.T) {
	p := NewPool()
	p.Enqueue(1, nil)
	p.Enqueue(2, nil)
	p.Enqueue(3, nil)

	if !p.Cancel(2) {
		t.Fatal("Cancel(2) should report removal")
	}
	if p.Cancel(2) {
		t.Error("second Cancel(2) should be a no-op")
	}
	if p.Contains(2) {
		t.Error("cancelled user should not be in the pool")
	}

	a, b, ok := p.DequeueOldestPair()
	if !ok {
		t.Fatal("expected a pair after cancel")
	}
	if a.User != 1 || b.User != 3 {
		t.Errorf("expected pair (1,3), got (%d,%d)", a.User, b.User)
	}
}

func TestPool_CancelGeneration(t *testing.T) {
	p := NewPool()
	gen, err := p.Enqueue(1, nil)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	if p.CancelGeneration(1, gen+1) {
		t.Error("mismatched generation should not remove the entry")
	}
	if !p.Contains(1) {
		t.Fatal("entry should survive a mismatched CancelGeneration")
	}
	if !p.CancelGeneration(1, gen) {
		t.Fatal("matching generation should remove the entry")
	}

	fresh, err := p.Enqueue(1, nil)
	if err != nil {
		t.Fatalf("re-enqueue error: %v", err)
	}
	if fresh == gen {
		t.Fatal("re-enqueue should mint a new generation")
	}
	if p.CancelGeneration(1, gen) {
		t.Error("stale generation should not evict the fresh entry")
	}
	if !p.Contains(1) {
		t.Error("fresh entry should survive a stale CancelGeneration")
	}
}

func TestPool_DequeueNeedsTwo(t *testing.T) {
	p := NewPool()
	p.Enqueue(5, nil)

	if _, _, ok := p.DequeueOldestPair(); ok {
		t.Error("single waiter should not pair")
	}
	if !p.Contains(5) {
		t.Error("lone waiter should remain in the pool")
	}
}

func TestPool_EnqueueCopiesInterests(t *testing.T) {
	tags := []string{"music", "games"}
	p := NewPool()
	p.Enqueue(1, tags)
	tags[0] = "mutated"
	p.Enqueue(2, nil)

	a, _, _ := p.DequeueOldestPair()
	if a.Interests[0] != "music" {
		t.Errorf("pool entry should hold its own copy, got %q", a.Interests[0])
	}
}

func TestSharedInterests(t *testing.T) {
	got := SharedInterests([]string{"music", "anime", "games"}, []string{"games", "music", "cooking"})
	if len(got) != 2 || got[0] != "games" || got[1] != "music" {
		t.Errorf("unexpected intersection: %v", got)
	}

	if got := SharedInterests(nil, []string{"x"}); len(got) != 0 {
		t.Errorf("expected empty intersection, got %v", got)
	}
}
