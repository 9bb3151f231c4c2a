package agent

import (
	"testing"

	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/session"
)

func testAgentConfig() config.Agent {
	return config.Defaults().Agent
}

func assistantTurn(content string) session.Message {
	return session.Message{Role: "assistant", Content: content}
}

func TestHeuristicStopEmptyHistory(t *testing.T) {
	h := NewHeuristicStop()
	if _, halt := h.ShouldStop(nil); halt {
		t.Error("Empty history must not stop")
	}
	if _, halt := h.ShouldStop([]session.Message{{Role: "user", Content: "hi"}}); halt {
		t.Error("History without assistant turns must not stop")
	}
}

func TestHeuristicStopCompletionPhrases(t *testing.T) {
	h := NewHeuristicStop()

	// One phrase alone is not enough.
	history := []session.Message{assistantTurn("Here is the file you asked for.")}
	if _, halt := h.ShouldStop(history); halt {
		t.Error("A single completion phrase must not stop the loop")
	}

	history = []session.Message{assistantTurn("Task completed. Here is the summary of the changes.")}
	reason, halt := h.ShouldStop(history)
	if !halt {
		t.Fatal("Two distinct completion phrases should stop the loop")
	}
	if reason == "" {
		t.Error("Expected a non-empty stop reason")
	}
}

func TestHeuristicStopConvergence(t *testing.T) {
	h := NewHeuristicStop()

	// Four near-equal-length tool-free turns: the last three are all
	// within the band of their predecessor.
	history := []session.Message{
		assistantTurn("I will check the configuration settings now ok"),
		assistantTurn("Let me check the configuration settings again now"),
		assistantTurn("Now checking the configuration settings one more time"),
		assistantTurn("Still checking the configuration settings right now again"),
	}
	if _, halt := h.ShouldStop(history); !halt {
		t.Error("Repeating near-equal turns should be judged stalled")
	}

	// A tool call in the window breaks the stall.
	history[2].ToolCalls = []session.ToolCall{{ToolCallID: "c", Name: "read_file"}}
	if _, halt := h.ShouldStop(history); halt {
		t.Error("Tool activity in the window must not be judged stalled")
	}
}

func TestHeuristicStopRepeatedToolIterations(t *testing.T) {
	h := NewHeuristicStop()

	spin := func(content string) session.Message {
		return session.Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: []session.ToolCall{{ToolCallID: "c", Name: "read_file"}},
		}
	}
	// The same tool with near-identical narration, four iterations running.
	turn := []session.Message{
		spin("I will check the configuration settings now ok"),
		spin("Let me check the configuration settings again now"),
		spin("Now checking the configuration settings one more time"),
		spin("Still checking the configuration settings right now again"),
	}
	if _, halt := h.ShouldStop(turn); !halt {
		t.Error("Repeating the same tool with near-equal narration should be judged stalled")
	}

	// Switching tools counts as progress.
	turn[2].ToolCalls = []session.ToolCall{{ToolCallID: "c", Name: "search_files"}}
	if _, halt := h.ShouldStop(turn); halt {
		t.Error("Changing tool usage must not be judged stalled")
	}
}

func TestHeuristicStopDivergentLengths(t *testing.T) {
	h := NewHeuristicStop()
	history := []session.Message{
		assistantTurn("short"),
		assistantTurn("this one is a considerably longer response with many more words than before"),
		assistantTurn("short again"),
		assistantTurn("and now something of a very different length entirely from the previous turn"),
	}
	if _, halt := h.ShouldStop(history); halt {
		t.Error("Divergent turn lengths must not be judged stalled")
	}
}

func TestBudgetComplexityBonus(t *testing.T) {
	b := NewBudget(testAgentConfig())

	base := b.ForInput("hello")
	if base != 128000-8192 {
		t.Errorf("Expected base budget %d, got %d", 128000-8192, base)
	}

	boosted := b.ForInput("please refactor and debug this module")
	if boosted != base+2*2048 {
		t.Errorf("Expected two complexity bonuses, got %d (base %d)", boosted, base)
	}
}

func TestBudgetCappedAtContextWindow(t *testing.T) {
	cfg := testAgentConfig()
	cfg.ContextWindow = 100
	cfg.ReservedHeadroom = 10
	cfg.ComplexityBonus = 50
	b := NewBudget(cfg)

	// Three keywords would push 90 + 150 past the window.
	if got := b.ForInput("refactor, debug and test everything"); got != 100 {
		t.Errorf("Expected budget capped at the context window (100), got %d", got)
	}
}

func TestBudgetNeverNegative(t *testing.T) {
	cfg := testAgentConfig()
	cfg.ContextWindow = 10
	cfg.ReservedHeadroom = 1000
	b := NewBudget(cfg)
	if got := b.ForInput("hi"); got != 0 {
		t.Errorf("Expected clamped zero budget, got %d", got)
	}
}

func TestBudgetCountUsagePrefersProviderNumbers(t *testing.T) {
	b := NewBudget(testAgentConfig())
	msg := &session.Message{
		Role:    "assistant",
		Content: "some content",
		Usage:   &session.Usage{InputTokens: 100, OutputTokens: 50},
	}
	if got := b.CountUsage(msg); got != 150 {
		t.Errorf("Expected provider usage 150, got %d", got)
	}

	// Without provider usage the text itself is counted.
	msg.Usage = nil
	if got := b.CountUsage(msg); got <= 0 {
		t.Errorf("Expected positive estimated usage, got %d", got)
	}
}
