package agent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/quillagent/quill/session"
)

func TestCompressHistoryBelowThreshold(t *testing.T) {
	messages := []session.Message{
		{Role: "system", Content: "prompt"},
		{Role: "user", Content: "hi"},
	}
	out, elided := CompressHistory(messages, 20)
	if elided != 0 {
		t.Errorf("Short history must not be compressed, elided %d", elided)
	}
	if len(out) != 2 {
		t.Errorf("History changed without compression: %d messages", len(out))
	}
}

func TestCompressHistoryRetainsSystemAndNotesElision(t *testing.T) {
	messages := []session.Message{{Role: "system", Content: "prompt"}}
	for i := 0; i < 40; i++ {
		messages = append(messages,
			session.Message{Role: "user", Content: fmt.Sprintf("question %d", i)},
			session.Message{Role: "assistant", Content: fmt.Sprintf("answer %d", i)},
		)
	}

	out, elided := CompressHistory(messages, 10)
	if elided == 0 {
		t.Fatal("Expected compression to elide messages")
	}
	if len(out) > 11 {
		t.Errorf("Expected at most keep+1 messages, got %d", len(out))
	}
	if out[0].Role != "system" || out[0].Content != "prompt" {
		t.Error("Original system prompt must survive compression")
	}

	noted := false
	for _, msg := range out {
		if msg.Role == "system" && strings.Contains(msg.Content, fmt.Sprintf("%d earlier messages", elided)) {
			noted = true
		}
	}
	if !noted {
		t.Error("Expected a synthetic system note naming the elided count")
	}
}

func TestCompressHistoryKeepsToolPairsTogether(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 30; i++ {
		messages = append(messages, session.Message{Role: "user", Content: fmt.Sprintf("msg %d", i)})
	}
	// A tool exchange near the end scores high on recency and tool
	// activity; it must survive as a whole.
	messages = append(messages,
		session.Message{
			Role:      "assistant",
			ToolCalls: []session.ToolCall{{ToolCallID: "call_9", Name: "read_file"}},
		},
		session.Message{
			Role:      "tool",
			Content:   "file contents",
			ToolCalls: []session.ToolCall{{ToolCallID: "call_9", Name: "read_file"}},
		},
		session.Message{Role: "assistant", Content: "done reading"},
	)

	out, elided := CompressHistory(messages, 12)
	if elided == 0 {
		t.Fatal("Expected compression")
	}

	var haveRequest, haveResult bool
	for _, msg := range out {
		if msg.Role == "assistant" && len(msg.ToolCalls) == 1 && msg.ToolCalls[0].ToolCallID == "call_9" {
			haveRequest = true
		}
		if msg.Role == "tool" && len(msg.ToolCalls) == 1 && msg.ToolCalls[0].ToolCallID == "call_9" {
			haveResult = true
		}
	}
	if haveRequest != haveResult {
		t.Errorf("Tool request/result pair split by compression: request=%v result=%v", haveRequest, haveResult)
	}
	if !haveRequest {
		t.Error("Recent tool exchange should have been retained")
	}

	// Retained messages keep their original relative order.
	lastIdx := -1
	for _, msg := range out {
		if msg.Role != "user" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(msg.Content, "msg %d", &n); err == nil {
			if n < lastIdx {
				t.Errorf("Retained messages out of order: %d after %d", n, lastIdx)
			}
			lastIdx = n
		}
	}
}
