package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quillagent/quill/session"
)

var errorKeywords = []string{"error", "failed", "exception", "panic", "cannot", "unable"}

// unit is the atom of compression: either a single message, or an assistant
// tool-call message grouped with the tool results that answer it. Grouping
// keeps request/response pairs together so compression never leaves a tool
// result whose originating call was elided.
type unit struct {
	index    int
	messages []session.Message
	score    float64
}

// CompressHistory reduces history to roughly `keep` messages. System messages
// always survive; the remaining messages are scored and the best retained in
// their original order, with one synthetic system note marking how many were
// dropped. Returns the new history and the number of elided messages.
func CompressHistory(messages []session.Message, keep int) ([]session.Message, int) {
	if keep <= 0 || len(messages) <= keep {
		return messages, 0
	}

	var system []session.Message
	var rest []session.Message
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	units := groupUnits(rest)
	for i := range units {
		units[i].score = scoreUnit(units[i], len(units))
	}

	// Pick the highest-scoring units until the retained message count
	// would exceed the target.
	byScore := make([]*unit, len(units))
	for i := range units {
		byScore[i] = &units[i]
	}
	sort.SliceStable(byScore, func(i, j int) bool { return byScore[i].score > byScore[j].score })

	budget := keep - len(system) - 1 // one slot for the elision note
	if budget < 1 {
		budget = 1
	}
	kept := map[int]bool{}
	retained := 0
	for _, u := range byScore {
		if retained+len(u.messages) > budget {
			continue
		}
		kept[u.index] = true
		retained += len(u.messages)
	}

	elided := len(rest) - retained
	if elided <= 0 {
		return messages, 0
	}

	out := make([]session.Message, 0, len(system)+retained+1)
	out = append(out, system...)
	out = append(out, session.Message{
		Role:    "system",
		Content: fmt.Sprintf("[%d earlier messages were removed from context to stay within limits]", elided),
	})
	for _, u := range units {
		if kept[u.index] {
			out = append(out, u.messages...)
		}
	}
	return out, elided
}

// groupUnits walks messages in order, attaching each tool-result message to
// the assistant message that requested it.
func groupUnits(messages []session.Message) []unit {
	var units []unit
	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		u := unit{index: len(units), messages: []session.Message{msg}}
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			wanted := map[string]bool{}
			for _, tc := range msg.ToolCalls {
				wanted[tc.ToolCallID] = true
			}
			for i+1 < len(messages) && messages[i+1].Role == "tool" &&
				len(messages[i+1].ToolCalls) == 1 && wanted[messages[i+1].ToolCalls[0].ToolCallID] {
				i++
				u.messages = append(u.messages, messages[i])
			}
		}
		units = append(units, u)
	}
	return units
}

// scoreUnit ranks a unit's worth: recent messages, tool activity, code,
// errors, questions, and substance all raise the score.
func scoreUnit(u unit, total int) float64 {
	// Recency dominates: the most recent unit gets the full weight.
	score := 10.0 * float64(u.index+1) / float64(total)

	for _, msg := range u.messages {
		lower := strings.ToLower(msg.Content)
		if len(msg.ToolCalls) > 0 {
			score += 3
		}
		if strings.Contains(msg.Content, "```") {
			score += 2
		}
		for _, kw := range errorKeywords {
			if strings.Contains(lower, kw) {
				score += 1
				break
			}
		}
		if strings.Contains(msg.Content, "?") {
			score += 1
		}
		if len(msg.Content) > 500 {
			score += 1
		}
	}
	return score
}
