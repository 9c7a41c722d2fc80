package report

import (
	"encoding/json"
	"testing"

	"github.com/veil/chat-app/internal/chat"
)

func TestPartyLabel(t *testing.T) {
	m := chat.HistoryEntry{From: 1, Text: "hi"}
	if got := partyLabel(m, 1); got != "party_a" {
		t.Errorf("reporter label = %q, want party_a", got)
	}
	if got := partyLabel(m, 2); got != "party_b" {
		t.Errorf("partner label = %q, want party_b", got)
	}
}

func TestMessageEntry_OmitsUserID(t *testing.T) {
	e := messageEntry{From: "party_b", Text: "hello", Ts: 100}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["from"] != "party_b" {
		t.Errorf("from = %v", raw["from"])
	}
	if _, ok := raw["From"]; ok {
		t.Error("raw struct field name leaked into JSON")
	}
}
