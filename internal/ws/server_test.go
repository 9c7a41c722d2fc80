package ws

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/veil/chat-app/internal/delivery"
	"github.com/veil/chat-app/internal/protocol"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a
}

func TestManager_AddEvictsPredecessor(t *testing.T) {
	m := NewManager()

	first := &Connection{UserID: 1, Conn: pipeConn(t)}
	if old := m.Add(first); old != nil {
		t.Fatalf("first Add returned %v", old)
	}

	second := &Connection{UserID: 1, Conn: pipeConn(t)}
	if old := m.Add(second); old != first {
		t.Fatal("second Add should return the displaced connection")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}

	// The stale connection must not remove its successor.
	if m.Remove(first) {
		t.Error("Remove of displaced connection should be a no-op")
	}
	if got := m.Get(1); got != second {
		t.Error("successor connection was removed")
	}

	if !m.Remove(second) {
		t.Error("Remove of current connection should succeed")
	}
	if m.Count() != 0 {
		t.Errorf("Count after remove = %d", m.Count())
	}
}

func TestPayloadFrame_Notice(t *testing.T) {
	data, err := PayloadFrame(delivery.Notice(delivery.NoticePartnerFound, "music"))
	if err != nil {
		t.Fatalf("PayloadFrame: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result["type"] != protocol.TypeNotice {
		t.Errorf("type = %v", result["type"])
	}
	if result["code"] != delivery.NoticePartnerFound {
		t.Errorf("code = %v", result["code"])
	}
	if result["text"] != "music" {
		t.Errorf("text = %v", result["text"])
	}
}

func TestPayloadFrame_Media(t *testing.T) {
	data, err := PayloadFrame(delivery.Media(delivery.KindPhoto, "file-3", "cap"))
	if err != nil {
		t.Fatalf("PayloadFrame: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result["type"] != protocol.TypeMessage {
		t.Errorf("type = %v", result["type"])
	}
	if result["kind"] != "photo" || result["ref"] != "file-3" || result["text"] != "cap" {
		t.Errorf("frame fields = %v", result)
	}
}
