package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quillagent/quill/acp"
	"github.com/quillagent/quill/agent"
	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/llm"
	"github.com/quillagent/quill/sandbox"
	"github.com/quillagent/quill/scheduler"
	"github.com/quillagent/quill/session"
	"github.com/quillagent/quill/terminal"
	"github.com/quillagent/quill/tools"
	"github.com/quillagent/quill/tools/mcp"
)

func main() {
	modeFlag := flag.String("m", "", "Execution mode: 'auto' or 'prompt'")
	sessionFlag := flag.String("s", "", "Session name to create or use")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	resumeFlag := flag.String("r", "", "Resume a session by name")
	toolVerbosityFlag := flag.String("tool-verbosity", "", "Tool verbosity level: 'none', 'info', or 'all'")
	acpFlag := flag.Bool("acp", false, "Run as an Agent Client Protocol server over stdio")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	var sess *session.Session
	sessionName := *sessionFlag

	if *resumeFlag != "" {
		sessionName = *resumeFlag
		sess, err = session.Load(sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Resuming session: %s\n", sessionName)
		// Session settings apply unless overridden on the command line.
		if *modeFlag == "" && sess.Mode != "" {
			*modeFlag = sess.Mode
		}
		if *toolsetFlag == "" && sess.Toolset != "" {
			*toolsetFlag = sess.Toolset
		}
		if *toolVerbosityFlag == "" && sess.ToolVerbosity != "" {
			*toolVerbosityFlag = sess.ToolVerbosity
		}
	} else if !*acpFlag {
		if sessionName == "" {
			sessionName = defaultSessionName()
		}
		sess, err = session.New(sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Starting new session: %s\n", sessionName)
	}

	if *modeFlag == "" {
		*modeFlag = "prompt"
	}
	if *toolVerbosityFlag == "" {
		*toolVerbosityFlag = "info"
	}

	var opMode agent.Mode
	switch *modeFlag {
	case "auto":
		opMode = agent.ModeAuto
	case "prompt":
		opMode = agent.ModePrompt
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode '%s'. Must be 'auto' or 'prompt'.\n", *modeFlag)
		os.Exit(1)
	}

	var verbosity agent.ToolVerbosity
	switch *toolVerbosityFlag {
	case "none":
		verbosity = agent.ToolVerbosityNone
	case "info":
		verbosity = agent.ToolVerbosityInfo
	case "all":
		verbosity = agent.ToolVerbosityAll
	default:
		fmt.Fprintf(os.Stderr, "Invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'.\n", *toolVerbosityFlag)
		os.Exit(1)
	}

	ctx := context.Background()

	var client llm.LLMClient
	if cfg.LLMClient == "" || cfg.LLMClient == "mock" {
		client = &llm.MockClient{}
	} else {
		client, err = llm.NewClient(ctx, cfg.LLMClient, cfg.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.LLMClient, err)
			os.Exit(1)
		}
	}

	controller := cancel.NewController(cfg.EscalationWindow)
	registry, mcpClients, err := buildRegistry(ctx, cfg, controller, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up tools: %+v\n", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range mcpClients {
			_ = c.Stop()
		}
	}()

	// Background tasks share the registry and controller with the
	// foreground agent; the spawn/status tools make them reachable from
	// the conversation.
	sched := scheduler.New(cfg.Scheduler, controller)
	manager := scheduler.NewSubagentManager(cfg, client, registry, controller, sched)
	if err := registry.Register(scheduler.NewSpawnSubagentTool(manager)); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering subagent tool: %+v\n", err)
		os.Exit(1)
	}
	if err := registry.Register(scheduler.NewTaskStatusTool(sched)); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering task status tool: %+v\n", err)
		os.Exit(1)
	}

	if *acpFlag {
		server := acp.NewServer(cfg, client, registry, controller, os.Stdin, os.Stdout, logger)
		if err := server.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "ACP server failed: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	sess.Mode = *modeFlag
	sess.Toolset = *toolsetFlag
	sess.ToolVerbosity = *toolVerbosityFlag
	if err := sess.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving session '%s': %+v\n", sessionName, err)
		os.Exit(1)
	}

	quillAgent, err := agent.New(cfg, sess, *toolsetFlag, opMode, client, registry, controller)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agent: %+v\n", err)
		os.Exit(1)
	}
	quillAgent.Verbosity = verbosity

	initialPrompt := strings.Join(flag.Args(), " ")
	fmt.Println("Quill is ready. Type your prompt.")
	term := terminal.New(quillAgent, controller)
	if err := term.Run(ctx, initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

// buildRegistry wires the built-in tools plus any configured MCP servers.
func buildRegistry(ctx context.Context, cfg *config.Config, controller *cancel.Controller, logger *slog.Logger) (*tools.Registry, []*mcp.Client, error) {
	sb := sandbox.New(cfg.FilesystemAccess)
	registry := tools.NewRegistry()

	builtin := []tools.Tool{
		tools.NewReadFileTool(sb),
		tools.NewWriteFileTool(sb),
		tools.NewListDirTool(sb),
		tools.NewSearchFilesTool(sb),
		tools.NewExecuteCommandTool(cfg.AllowedCommands, controller),
		tools.NewWebFetchTool(0),
	}
	for _, t := range builtin {
		if err := registry.Register(t); err != nil {
			return nil, nil, err
		}
	}

	var clients []*mcp.Client
	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewClient(ctx, server.Name, server.Command, server.Args, controller)
		if err != nil {
			logger.Warn("skipping MCP server", "name", server.Name, "err", err)
			continue
		}
		for _, t := range client.Tools() {
			if err := registry.Register(t); err != nil {
				logger.Warn("skipping MCP tool", "name", t.Name(), "err", err)
			}
		}
		clients = append(clients, client)
	}
	return registry, clients, nil
}

// newLogger writes structured debug logs to the configured file, or discards
// them. Stdout stays reserved for conversation (and, in ACP mode, JSON-RPC).
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.DebugLog == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f, err := os.OpenFile(cfg.DebugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot open debug log %s: %v\n", cfg.DebugLog, err)
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "quill"
	}
	return fmt.Sprintf("%s_%s", filepath.Base(wd), time.Now().Format("2006-01-02_15-04-05"))
}
