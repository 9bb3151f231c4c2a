package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/quillagent/quill/agent"
	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/llm"
	"github.com/quillagent/quill/session"
	"github.com/quillagent/quill/tools"
)

func newTestTerminal(t *testing.T, client llm.LLMClient, input string) (*Terminal, *bytes.Buffer) {
	t.Helper()
	cfg := config.Defaults()
	sess := session.NewInMemory("terminal-test")
	controller := cancel.NewController(cfg.EscalationWindow)
	registry := tools.NewRegistry()

	a, err := agent.New(cfg, sess, "", agent.ModeAuto, client, registry, controller)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}

	term := New(a, controller)
	out := &bytes.Buffer{}
	term.in = strings.NewReader(input)
	term.out = out
	return term, out
}

func TestTerminalNew(t *testing.T) {
	term, _ := newTestTerminal(t, &llm.MockClient{}, "")
	if term == nil {
		t.Fatal("Expected terminal instance, got nil")
	}
	if term.queue == nil {
		t.Fatal("Terminal must own a message queue")
	}
}

func TestTerminalRunWithInitialPrompt(t *testing.T) {
	mock := &llm.MockClient{
		Responses: []*session.Message{
			{Role: "assistant", Content: "hello from the model"},
		},
	}
	term, out := newTestTerminal(t, mock, "")

	// Empty stdin: Run processes the initial prompt, then exits on EOF.
	if err := term.Run(context.Background(), "initial prompt"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), "hello from the model") {
		t.Errorf("Expected assistant output, got %q", out.String())
	}
	if mock.Calls != 1 {
		t.Errorf("Expected 1 backend call, got %d", mock.Calls)
	}
}

func TestTerminalRunReadsUntilQuit(t *testing.T) {
	mock := &llm.MockClient{
		Responses: []*session.Message{
			{Role: "assistant", Content: "first reply"},
			{Role: "assistant", Content: "second reply"},
		},
	}
	term, out := newTestTerminal(t, mock, "say one\nsay two\n/quit\n")

	if err := term.Run(context.Background(), ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "first reply") || !strings.Contains(text, "second reply") {
		t.Errorf("Expected both replies in output, got %q", text)
	}
	if mock.Calls != 2 {
		t.Errorf("Expected 2 backend calls, got %d", mock.Calls)
	}
}

func TestTerminalSkipsBlankLines(t *testing.T) {
	mock := &llm.MockClient{
		Responses: []*session.Message{
			{Role: "assistant", Content: "only reply"},
		},
	}
	term, _ := newTestTerminal(t, mock, "\n   \nreal input\n/exit\n")

	if err := term.Run(context.Background(), ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if mock.Calls != 1 {
		t.Errorf("Blank lines must not reach the model, got %d calls", mock.Calls)
	}
}

func TestTerminalResetsStaleCancellation(t *testing.T) {
	mock := &llm.MockClient{
		Responses: []*session.Message{
			{Role: "assistant", Content: "worked fine"},
		},
	}
	term, out := newTestTerminal(t, mock, "")

	// A cancellation left over from a previous turn must not abort the next.
	term.controller.Trigger("leftover")

	if err := term.Run(context.Background(), "new request"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), "worked fine") {
		t.Errorf("Stale cancellation carried into new turn: %q", out.String())
	}
}
