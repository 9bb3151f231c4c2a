package agent

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/session"
)

// complexityKeywords are signals in a user message that the task will need
// more turns than usual. Each distinct hit widens the budget by a fixed bonus.
var complexityKeywords = []string{
	"refactor",
	"debug",
	"test",
	"implement",
	"analyze",
	"multiple steps",
	"step by step",
	"entire",
	"all files",
}

// Budget computes and tracks the adaptive token budget for one conversation
// turn. The base is the model's context window minus reserved headroom;
// complexity signals in the user message raise it in fixed increments.
type Budget struct {
	contextWindow    int
	reservedHeadroom int
	complexityBonus  int
	encoder          *tiktoken.Tiktoken
}

func NewBudget(cfg config.Agent) *Budget {
	// Encoder load can fail offline; counting then falls back to a
	// character estimate.
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Budget{
		contextWindow:    cfg.ContextWindow,
		reservedHeadroom: cfg.ReservedHeadroom,
		complexityBonus:  cfg.ComplexityBonus,
		encoder:          enc,
	}
}

// ForInput returns the token budget for a turn opened by the given user
// message. Complexity bonuses may eat into the reserved headroom but the
// budget never exceeds the context window itself.
func (b *Budget) ForInput(userInput string) int {
	budget := b.contextWindow - b.reservedHeadroom
	lower := strings.ToLower(userInput)
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			budget += b.complexityBonus
		}
	}
	if budget > b.contextWindow {
		budget = b.contextWindow
	}
	if budget < 0 {
		budget = 0
	}
	return budget
}

// CountUsage returns the tokens a model response consumed. Provider-reported
// usage wins; otherwise the response text is counted locally.
func (b *Budget) CountUsage(msg *session.Message) int {
	if msg.Usage != nil {
		return msg.Usage.Total()
	}
	return b.CountText(msg.Content)
}

// CountText estimates the token count of a string.
func (b *Budget) CountText(text string) int {
	if b.encoder != nil {
		return len(b.encoder.Encode(text, nil, nil))
	}
	// Rough heuristic used when no encoding is available.
	return len(text) / 4
}
