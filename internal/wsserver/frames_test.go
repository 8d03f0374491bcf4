package wsserver

import (
	"encoding/json"
	"testing"

	"github.com/voicebridge/gateway/internal/session"
)

func TestSessionCreatedFrameIncludesLanguage(t *testing.T) {
	frame := ServerFrame{Type: ServerFrameSessionCreated, SessionID: "abc", Language: "en-US"}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "session_created" || got["session_id"] != "abc" || got["language"] != "en-US" {
		t.Fatalf("unexpected session_created shape: %s", data)
	}
}

func TestStatusFrameShape(t *testing.T) {
	frame := ServerFrame{Type: ServerFrameStatus, State: "processing", Stage: "asr"}
	data, _ := json.Marshal(frame)
	var got map[string]any
	json.Unmarshal(data, &got)
	if got["type"] != "status" || got["state"] != "processing" || got["stage"] != "asr" {
		t.Fatalf("unexpected status frame shape: %s", data)
	}
}

func TestStateSnapshotFrameCarriesHistory(t *testing.T) {
	frame := StateSnapshotFrame{
		Type:      ServerFrameState,
		SessionID: "abc",
		Language:  "en-US",
		State:     string(session.StateIdle),
		History:   []session.Turn{{Role: "user", Content: "hi"}},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	json.Unmarshal(data, &got)
	if got["type"] != "state" || got["state"] != "IDLE" {
		t.Fatalf("unexpected state snapshot shape: %s", data)
	}
	hist, ok := got["history"].([]any)
	if !ok || len(hist) != 1 {
		t.Fatalf("expected one history entry, got %v", got["history"])
	}
}
