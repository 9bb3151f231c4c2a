// Package terminal implements the interactive CLI session: a read-eval loop
// that feeds user input through the message queue and maps Ctrl-C presses
// onto the two-level cancellation controller.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/quillagent/quill/agent"
	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/session"
)

// Terminal handles the terminal interaction mode for the agent.
type Terminal struct {
	agent      *agent.Agent
	queue      *agent.MessageQueue
	controller *cancel.Controller

	in  io.Reader
	out io.Writer
}

// New creates a terminal over an agent. User messages are serialized through
// a queue so a second submission never interleaves with a running turn.
func New(a *agent.Agent, controller *cancel.Controller) *Terminal {
	return &Terminal{
		agent:      a,
		queue:      agent.NewMessageQueue(a),
		controller: controller,
		in:         os.Stdin,
		out:        os.Stdout,
	}
}

// Run starts the interactive session. A single Ctrl-C aborts the current
// step; a second within the escalation window aborts everything and kills
// tracked subprocesses.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			level := t.controller.Trigger("interrupt")
			if level == cancel.LevelFull {
				fmt.Fprintln(t.out, "\nAborting everything and terminating subprocesses.")
			} else {
				fmt.Fprintln(t.out, "\nCancelling the current step. Press Ctrl-C again to abort everything.")
			}
		}
	}()

	t.queue.Start(ctx)
	defer t.queue.Stop()

	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session.
			break
		}
		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			break
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

// processTurn submits one user input and blocks until the turn finishes.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	// A fresh turn never inherits a stale cancellation.
	t.controller.Reset()

	qm, err := t.queue.Submit(userInput, t.callbacks())
	if err != nil {
		return err
	}
	done, err := t.queue.Wait(ctx, qm.ID)
	if err != nil {
		return err
	}
	return done.Err
}

// callbacks maps loop events onto terminal output, honoring the configured
// tool verbosity and prompt-mode confirmation.
func (t *Terminal) callbacks() agent.ProcessCallbacks {
	return agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) {
			fmt.Fprintf(t.out, "Quill: %s\n", message)
		},
		OnToolCall: func(toolCall session.ToolCall) {
			switch t.agent.Verbosity {
			case agent.ToolVerbosityAll:
				fmt.Fprintf(t.out, "Quill wants to call tool `%s` with args: %v\n", toolCall.Name, toolCall.Args)
			case agent.ToolVerbosityInfo:
				fmt.Fprintf(t.out, "Quill wants to call tool `%s`\n", toolCall.Name)
			}
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Fprintf(t.out, "Tool `%s` output: %s\n", toolCall.Name, result)
			}
		},
		ShouldExecuteTool: func(toolCall session.ToolCall) bool {
			if t.agent.Mode != agent.ModePrompt {
				return true
			}
			fmt.Fprintf(t.out, "Allow tool `%s`? (y/n): ", toolCall.Name)
			reader := bufio.NewReader(t.in)
			answer, _ := reader.ReadString('\n')
			return strings.TrimSpace(strings.ToLower(answer)) == "y"
		},
		OnWarning: func(warning string) {
			fmt.Fprintf(t.out, "Warning: %s\n", warning)
		},
	}
}
