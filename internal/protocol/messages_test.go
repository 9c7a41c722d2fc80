package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage_FindPartner(t *testing.T) {
	input := []byte(`{"type":"find_partner","interests":["music","games"]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeFindPartner {
		t.Fatalf("expected type %q, got %q", TypeFindPartner, msgType)
	}

	fm, ok := msg.(FindPartnerMsg)
	if !ok {
		t.Fatalf("expected FindPartnerMsg, got %T", msg)
	}
	if len(fm.Interests) != 2 || fm.Interests[0] != "music" {
		t.Errorf("unexpected interests: %v", fm.Interests)
	}
}

func TestParseClientMessage_Start(t *testing.T) {
	input := []byte(`{"type":"start","referrer":42,"handle":"alice"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sm, ok := msg.(StartMsg)
	if !ok {
		t.Fatalf("expected StartMsg, got %T", msg)
	}
	if sm.Referrer != 42 {
		t.Errorf("referrer = %d, want 42", sm.Referrer)
	}
	if sm.Handle != "alice" {
		t.Errorf("handle = %q, want %q", sm.Handle, "alice")
	}
}

func TestParseClientMessage_Media(t *testing.T) {
	input := []byte(`{"type":"media","kind":"photo","ref":"file-9","caption":"look"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mm, ok := msg.(MediaMsg)
	if !ok {
		t.Fatalf("expected MediaMsg, got %T", msg)
	}
	if mm.Kind != "photo" || mm.Ref != "file-9" || mm.Caption != "look" {
		t.Errorf("unexpected media fields: %+v", mm)
	}
}

func TestParseClientMessage_Reveal(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"reveal","accept":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rm, ok := msg.(RevealMsg)
	if !ok {
		t.Fatalf("expected RevealMsg, got %T", msg)
	}
	if !rm.Accept {
		t.Error("accept should be true")
	}
}

func TestParseClientMessage_Admin(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"admin","action":"ban","target":1234}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	am, ok := msg.(AdminMsg)
	if !ok {
		t.Fatalf("expected AdminMsg, got %T", msg)
	}
	if am.Action != AdminBan || am.Target != 1234 {
		t.Errorf("unexpected admin fields: %+v", am)
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"bogus"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"text":"hi"}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNewServerMessage_Notice(t *testing.T) {
	data, err := NewServerMessage(TypeNotice, NoticeMsg{Code: "partner_found", Text: "music"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeNotice {
		t.Errorf("type = %v, want %q", result["type"], TypeNotice)
	}
	if result["code"] != "partner_found" {
		t.Errorf("code = %v", result["code"])
	}
	if result["text"] != "music" {
		t.Errorf("text = %v", result["text"])
	}
}

func TestNewServerMessage_Stats(t *testing.T) {
	data, err := NewServerMessage(TypeStats, StatsMsg{
		AgreedUsers:  10,
		WaitingUsers: 2,
		ActiveChats:  3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeStats {
		t.Errorf("type = %v, want %q", result["type"], TypeStats)
	}
	if n, _ := result["active_chats"].(float64); int(n) != 3 {
		t.Errorf("active_chats = %v", result["active_chats"])
	}
}
