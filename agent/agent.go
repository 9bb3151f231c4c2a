package agent

import (
	"context"
	"fmt"

	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/errors"
	"github.com/quillagent/quill/llm"
	"github.com/quillagent/quill/session"
	"github.com/quillagent/quill/tools"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ProcessCallbacks lets the caller observe and steer a turn as it runs.
// Nil callbacks are skipped.
type ProcessCallbacks struct {
	OnAssistantMessage func(message string)
	OnToolCall         func(toolCall session.ToolCall)
	OnToolResult       func(toolCall session.ToolCall, result string)
	ShouldExecuteTool  func(toolCall session.ToolCall) bool
	OnWarning          func(warning string)
}

// Agent drives one conversation: it sends history to the model, resolves the
// tool calls the model requests, folds the results back in, and repeats until
// the model answers or a budget runs out. History is owned exclusively by
// this instance.
type Agent struct {
	Config         *config.Config
	Session        *session.Session
	LLMClient      llm.LLMClient
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity

	registry   *tools.Registry
	controller *cancel.Controller
	budget     *Budget
	stop       StopStrategy
}

// New builds an agent over an explicit set of collaborators. The registry,
// controller, and client are injected rather than ambient so concurrent
// agents stay isolated.
func New(cfg *config.Config, sess *session.Session, toolset string, mode Mode, client llm.LLMClient, registry *tools.Registry, controller *cancel.Controller) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}
	activeTools, err := registry.ActiveTools(ts)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		Config:         cfg,
		Session:        sess,
		LLMClient:      client,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      ToolVerbosityInfo,
		registry:       registry,
		controller:     controller,
		budget:         NewBudget(cfg.Agent),
		stop:           NewHeuristicStop(),
	}

	if cfg.SystemPrompt != "" && len(sess.Messages) == 0 {
		sess.AddMessage(session.Message{Role: "system", Content: cfg.SystemPrompt})
	}
	return a, nil
}

// SetStopStrategy replaces the default stall/completion heuristics.
func (a *Agent) SetStopStrategy(s StopStrategy) {
	if s != nil {
		a.stop = s
	}
}

// ProcessUserInput runs the agent loop for one user message. The loop stops
// on the first of: a final textual answer, the hard iteration cap, the
// adaptive token budget, a detected stall, or cancellation. When it stops
// without a final answer, a diagnostic assistant message naming the cause is
// appended so the caller never sees empty output.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, callbacks ProcessCallbacks) error {
	a.Session.AddMessage(session.Message{Role: "user", Content: userInput})

	// The budget is fixed once per turn from the user message's complexity.
	budget := a.budget.ForInput(userInput)
	usedTokens := 0
	iterations := 0
	maxIterations := a.Config.Agent.MaxIterations

	// turn collects only the messages this call produces; the stop
	// heuristics read it so earlier turns' answers never stop a new one.
	var turn []session.Message

	for {
		if err := a.checkCancelled(ctx); err != nil {
			return err
		}

		// Termination policy, first match wins, evaluated before each
		// model request.
		if iterations >= maxIterations {
			a.finishWithDiagnostic(callbacks, fmt.Sprintf(
				"I stopped after reaching the maximum of %d tool-use iterations for a single request. The work so far is recorded above; please break the task into smaller steps and continue.", maxIterations))
			break
		}
		if usedTokens >= budget {
			a.finishWithDiagnostic(callbacks, fmt.Sprintf(
				"I stopped early due to the token limit for this request (%d of %d tokens used). Consider simplifying the request or starting a fresh session.", usedTokens, budget))
			break
		}
		if reason, halt := a.stop.ShouldStop(turn); halt {
			a.finishWithDiagnostic(callbacks, fmt.Sprintf(
				"I stopped because the conversation no longer appears to be making progress (%s). The partial results above are intact.", reason))
			break
		}

		a.compressIfNeeded(callbacks)

		response, err := a.LLMClient.Chat(ctx, a.Session.Messages, a.AvailableTools)
		if err != nil {
			return errors.Wrapf(err, "model request failed")
		}
		iterations++
		usedTokens += a.budget.CountUsage(response)

		a.Session.AddMessage(*response)
		turn = append(turn, *response)
		if response.Content != "" && callbacks.OnAssistantMessage != nil {
			callbacks.OnAssistantMessage(response.Content)
		}

		if len(response.ToolCalls) == 0 {
			// Final answer.
			break
		}

		// Tool calls from one model turn run strictly in the order the
		// model emitted them; later calls may depend on earlier results.
		for _, toolCall := range response.ToolCalls {
			if err := a.checkCancelled(ctx); err != nil {
				return err
			}
			if callbacks.OnToolCall != nil {
				callbacks.OnToolCall(toolCall)
			}
			resultText := a.resolveToolCall(ctx, toolCall, callbacks)
			if callbacks.OnToolResult != nil {
				callbacks.OnToolResult(toolCall, resultText)
			}
			toolMsg := session.Message{
				Role:      "tool",
				Content:   resultText,
				ToolCalls: []session.ToolCall{toolCall},
			}
			a.Session.AddMessage(toolMsg)
			turn = append(turn, toolMsg)
		}

		if err := a.Session.Save(); err != nil && callbacks.OnWarning != nil {
			callbacks.OnWarning(fmt.Sprintf("failed to save session: %v", err))
		}
	}

	if err := a.Session.Save(); err != nil && callbacks.OnWarning != nil {
		callbacks.OnWarning(fmt.Sprintf("failed to save session: %v", err))
	}
	return nil
}

// resolveToolCall produces exactly one result string for a requested call.
// Failures never propagate as errors: they come back as conversational
// content for the model's next turn.
func (a *Agent) resolveToolCall(ctx context.Context, toolCall session.ToolCall, callbacks ProcessCallbacks) string {
	if a.Mode == ModePrompt && callbacks.ShouldExecuteTool != nil && !callbacks.ShouldExecuteTool(toolCall) {
		return "Error: tool execution declined by the user"
	}

	tool, ok := a.registry.Get(toolCall.Name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool '%s'", toolCall.Name)
	}
	allowed := false
	for _, t := range a.AvailableTools {
		if t.Name() == toolCall.Name {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Sprintf("Error: tool '%s' is not in the active toolset", toolCall.Name)
	}

	return tool.Execute(ctx, toolCall.Args).Content()
}

// checkCancelled consults both the request context and the shared
// cancellation token at each suspension point.
func (a *Agent) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Labelf("cancelled", err, "turn aborted")
	}
	if a.controller != nil {
		if err := a.controller.Err(); err != nil {
			return errors.Labelf("cancelled", err, "turn aborted")
		}
	}
	return nil
}

func (a *Agent) finishWithDiagnostic(callbacks ProcessCallbacks, text string) {
	a.Session.AddMessage(session.Message{Role: "assistant", Content: text})
	if callbacks.OnAssistantMessage != nil {
		callbacks.OnAssistantMessage(text)
	}
}

func (a *Agent) compressIfNeeded(callbacks ProcessCallbacks) {
	threshold := a.Config.Agent.CompressThreshold
	if threshold <= 0 || len(a.Session.Messages) <= threshold {
		return
	}
	compressed, elided := CompressHistory(a.Session.Messages, a.Config.Agent.CompressKeep)
	if elided == 0 {
		return
	}
	a.Session.SetMessages(compressed)
	if callbacks.OnWarning != nil {
		callbacks.OnWarning(fmt.Sprintf("compressed conversation history, %d older messages elided", elided))
	}
}
