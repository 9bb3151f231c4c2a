package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	s, err := New("roundtrip")
	if err != nil {
		t.Fatal(err)
	}
	s.AddMessage(Message{Role: "user", Content: "hello"})
	s.AddMessage(Message{Role: "assistant", Content: "hi", ToolCalls: []ToolCall{
		{ToolCallID: "call_1", Name: "read_file", Args: map[string]interface{}{"path": "a.txt"}},
	}})
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load("roundtrip")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[1].ToolCalls[0].ToolCallID != "call_1" {
		t.Errorf("tool call id lost in round trip")
	}
	if loaded.Messages[0].Timestamp.IsZero() {
		t.Errorf("AddMessage should stamp messages")
	}

	if _, err := os.Stat(filepath.Join(".quill", "sessions", "roundtrip.json")); err != nil {
		t.Errorf("expected session file on disk: %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	if _, err := Load("nope"); err == nil {
		t.Error("expected error loading a missing session")
	}
}
