package agent

import (
	"sort"
	"strings"

	"github.com/quillagent/quill/session"
)

// StopStrategy decides whether the loop should halt before the next model
// request, given the messages the current turn has produced so far. Earlier
// turns are never consulted: a finished answer in a previous turn must not
// stop a new request. The interface exists so the lexical heuristics below
// can be swapped for a structured stop signal without touching the loop.
type StopStrategy interface {
	ShouldStop(turn []session.Message) (reason string, halt bool)
}

// completionPhrases signal that the model considers the task done even if it
// keeps producing turns. Two or more distinct matches stop the loop.
var completionPhrases = []string{
	"task completed",
	"task is complete",
	"here is the",
	"here's the",
	"in conclusion",
	"to summarize",
	"all done",
	"successfully completed",
}

// HeuristicStop detects stalled or already-finished turns from the
// assistant's recent iterations: near-equal-length messages repeating the
// same tools mean a stall, repeated completion phrasing means the answer
// already landed.
type HeuristicStop struct {
	// consecutive near-equal iterations required to call a stall.
	stallTurns int
	// word-count ratio band treated as "near-equal length".
	ratioLow, ratioHigh float64
}

func NewHeuristicStop() *HeuristicStop {
	return &HeuristicStop{stallTurns: 3, ratioLow: 0.9, ratioHigh: 1.1}
}

func (h *HeuristicStop) ShouldStop(turn []session.Message) (string, bool) {
	assistant := lastAssistantMessages(turn, h.stallTurns+1)
	if len(assistant) == 0 {
		return "", false
	}

	if phrases := countCompletionPhrases(assistant[len(assistant)-1].Content); phrases >= 2 {
		return "the response indicates the task is complete", true
	}

	if len(assistant) > h.stallTurns && h.isStalled(assistant) {
		return "recent responses repeat without new tool activity", true
	}
	return "", false
}

// isStalled reports whether the last stallTurns assistant messages each stay
// within the near-equal word-count band of their predecessor while invoking
// the same tools. Inside a turn every non-final iteration carries tool calls,
// so a change in which tools run counts as progress; identical tools with
// near-identical narration do not.
func (h *HeuristicStop) isStalled(assistant []session.Message) bool {
	recent := assistant[len(assistant)-h.stallTurns:]
	for i := 1; i < len(recent); i++ {
		prev := wordCount(recent[i-1].Content)
		curr := wordCount(recent[i].Content)
		if prev == 0 || curr == 0 {
			return false
		}
		ratio := float64(curr) / float64(prev)
		if ratio < h.ratioLow || ratio > h.ratioHigh {
			return false
		}
		if toolNames(recent[i-1]) != toolNames(recent[i]) {
			return false
		}
	}
	return true
}

func countCompletionPhrases(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			n++
		}
	}
	return n
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// toolNames returns a message's tool call names as a sorted comparable key.
func toolNames(msg session.Message) string {
	if len(msg.ToolCalls) == 0 {
		return ""
	}
	names := make([]string, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		names[i] = tc.Name
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func lastAssistantMessages(turn []session.Message, limit int) []session.Message {
	var out []session.Message
	for i := len(turn) - 1; i >= 0 && len(out) < limit; i-- {
		if turn[i].Role == "assistant" {
			out = append(out, turn[i])
		}
	}
	// Restore chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
