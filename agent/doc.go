// Package agent provides the core orchestration loop for the Quill system.
//
// This package contains the common code shared between the interaction modes
// (terminal CLI and ACP server). It defines the Agent type and the processing
// logic for handling user input, model requests, tool execution, and the
// termination policy that bounds every turn.
//
// # Architecture
//
// The agent package is organized around a handful of collaborating pieces:
//
//   - Agent: the processing loop itself (agent.go)
//   - Budget: adaptive per-turn token accounting (budget.go)
//   - StopStrategy: completion and stall detection (stop.go)
//   - CompressHistory: context compression keeping tool pairs intact (compress.go)
//   - MessageQueue: serialized input delivery for concurrent producers (queue.go)
//
// # Processing Loop
//
// ProcessUserInput appends the user message and then alternates between model
// requests and tool resolution. Before each request it evaluates the
// termination policy in order: the hard iteration cap, the adaptive token
// budget, and the stop strategy. Whichever trips first ends the turn with a
// diagnostic assistant message naming the cause, so callers never see empty
// output. A response without tool calls is the final answer.
//
// Tool calls from one model turn run strictly in the order the model emitted
// them. A failed tool never aborts the turn: its error text is folded back
// into the conversation as a tool result for the model's next request.
//
// # Callbacks
//
// The ProcessCallbacks structure lets each interaction mode observe the turn
// as it runs (assistant text, tool calls, tool results, warnings) and, in
// prompt mode, approve or decline individual tool executions. The same loop
// serves the terminal, the ACP server, and background subagents; only the
// callbacks differ.
//
// # Usage
//
//	a, err := agent.New(cfg, sess, toolset, agent.ModeAuto, client, registry, controller)
//	if err != nil {
//	    // handle error
//	}
//	err = a.ProcessUserInput(ctx, "user message", agent.ProcessCallbacks{
//	    OnAssistantMessage: func(message string) { fmt.Println(message) },
//	})
//
// # Modes
//
// The agent supports two operation modes:
//
//   - ModeAuto: tools run automatically without confirmation
//   - ModePrompt: each tool execution is confirmed via ShouldExecuteTool
package agent
