package chat

import (
	"fmt"
	"testing"
)

func TestChat_Partner(t *testing.T) {
	c := newChat(10, 20)
	if got := c.Partner(10); got != 20 {
		t.Errorf("Partner(10) = %d, want 20", got)
	}
	if got := c.Partner(20); got != 10 {
		t.Errorf("Partner(20) = %d, want 10", got)
	}
	if got := c.Partner(30); got != 0 {
		t.Errorf("Partner(30) = %d, want 0", got)
	}
}

func TestChat_TerminateOnce(t *testing.T) {
	c := newChat(1, 2)
	if c.Terminated() {
		t.Fatal("new chat should not be terminated")
	}
	if !c.Terminate() {
		t.Fatal("first Terminate should return true")
	}
	if c.Terminate() {
		t.Error("second Terminate should return false")
	}
	if !c.Terminated() {
		t.Error("chat should report terminated")
	}
}

func TestChat_RevealHandshake(t *testing.T) {
	c := newChat(1, 2)

	own, other := c.SetReveal(1, true)
	if own != ConsentAccept || other != ConsentUnset {
		t.Fatalf("after first accept: own=%v other=%v", own, other)
	}

	own, other = c.SetReveal(2, true)
	if own != ConsentAccept || other != ConsentAccept {
		t.Fatalf("after both accept: own=%v other=%v", own, other)
	}

	// Slots never reset; re-declaring keeps the resolved state.
	own, other = c.SetReveal(1, true)
	if own != ConsentAccept || other != ConsentAccept {
		t.Errorf("re-declare: own=%v other=%v", own, other)
	}
}

func TestChat_RevealDecline(t *testing.T) {
	c := newChat(1, 2)
	c.SetReveal(1, true)
	own, other := c.SetReveal(2, false)
	if own != ConsentDecline || other != ConsentAccept {
		t.Errorf("decline: own=%v other=%v", own, other)
	}
}

func TestChat_LikeOutcomes(t *testing.T) {
	c := newChat(1, 2)

	if got := c.SetLike(1); got != LikeRecorded {
		t.Fatalf("first like = %v, want LikeRecorded", got)
	}
	if got := c.SetLike(1); got != LikeAlready {
		t.Fatalf("repeat like = %v, want LikeAlready", got)
	}
	if got := c.SetLike(2); got != LikeMutual {
		t.Fatalf("partner like = %v, want LikeMutual", got)
	}
	// Mutual fires at most once.
	if got := c.SetLike(2); got != LikeAlready {
		t.Errorf("post-mutual like = %v, want LikeAlready", got)
	}
}

func TestChat_FirstReporterRetained(t *testing.T) {
	c := newChat(1, 2)
	if got := c.ReportedBy(); got != 0 {
		t.Fatalf("ReportedBy on fresh chat = %d", got)
	}
	c.SetReported(1)
	c.SetReported(2)
	if got := c.ReportedBy(); got != 1 {
		t.Errorf("ReportedBy = %d, want 1", got)
	}
}

func TestChat_HistoryRing(t *testing.T) {
	c := newChat(1, 2)

	if got := c.History(); len(got) != 0 {
		t.Fatalf("fresh history length = %d", len(got))
	}

	for i := 0; i < HistorySize+2; i++ {
		c.RecordMessage(1, fmt.Sprintf("msg-%d", i))
	}

	got := c.History()
	if len(got) != HistorySize {
		t.Fatalf("history length = %d, want %d", len(got), HistorySize)
	}
	// Oldest retained entry first.
	if got[0].Text != "msg-2" {
		t.Errorf("oldest entry = %q, want %q", got[0].Text, "msg-2")
	}
	if got[HistorySize-1].Text != fmt.Sprintf("msg-%d", HistorySize+1) {
		t.Errorf("newest entry = %q", got[HistorySize-1].Text)
	}
}
