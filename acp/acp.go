// Package acp implements the Agent Client Protocol server: JSON-RPC over
// stdio with newline-delimited framing, so editors like Zed can drive the
// agent. Supported methods: initialize, session/new, session/load, and
// session/prompt; responses stream back as session/update notifications.
package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/quillagent/quill/agent"
	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/llm"
	"github.com/quillagent/quill/session"
	"github.com/quillagent/quill/tools"
)

const protocolVersion = 1

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes used by the server.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server runs the ACP protocol over a reader/writer pair. Each client
// session gets its own orchestrator so histories never cross.
type Server struct {
	cfg        *config.Config
	client     llm.LLMClient
	registry   *tools.Registry
	controller *cancel.Controller
	log        *slog.Logger

	in  *bufio.Reader
	out *bufio.Writer

	mu       sync.Mutex
	agents   map[string]*agent.Agent
	writeMu  sync.Mutex
	toolMode agent.Mode
}

// NewServer builds an ACP server over explicit collaborators. Nothing but
// JSON-RPC messages is ever written to out; diagnostics go to the logger.
func NewServer(cfg *config.Config, client llm.LLMClient, registry *tools.Registry, controller *cancel.Controller, in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:        cfg,
		client:     client,
		registry:   registry,
		controller: controller,
		log:        logger,
		in:         bufio.NewReader(in),
		out:        bufio.NewWriter(out),
		agents:     map[string]*agent.Agent{},
		toolMode:   agent.ModeAuto,
	}
}

// Run reads requests until EOF. Framing errors are fatal; everything else is
// reported to the client in-band.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("acp server starting")
	for {
		line, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.log.Info("acp server exiting on EOF")
				return nil
			}
			return fmt.Errorf("acp read error: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		var req jsonrpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("acp parse error", "err", err)
			_ = s.writeError(nil, codeParseError, "Parse error", nil)
			continue
		}

		s.log.Debug("acp request", "method", req.Method, "id", req.ID)
		switch req.Method {
		case "initialize":
			s.handleInitialize(&req)
		case "session/new":
			s.handleSessionNew(&req)
		case "session/load":
			s.handleSessionLoad(&req)
		case "session/prompt":
			s.handleSessionPrompt(ctx, &req)
		default:
			_ = s.writeError(req.ID, codeMethodNotFound, "Method not found", req.Method)
		}
	}
}

// readMessage reads one newline-delimited JSON-RPC payload.
func (s *Server) readMessage() ([]byte, error) {
	line, err := s.in.ReadBytes('\n')
	if len(line) > 0 {
		return []byte(strings.TrimSpace(string(line))), nil
	}
	return nil, err
}

func (s *Server) writeJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		return err
	}
	if err := s.out.WriteByte('\n'); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) writeResult(id any, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.writeJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: raw})
}

func (s *Server) writeError(id any, code int, msg string, data any) error {
	return s.writeJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	})
}

func (s *Server) writeNotification(method string, params any) error {
	return s.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *Server) handleInitialize(req *jsonrpcRequest) {
	_ = s.writeResult(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

func (s *Server) handleSessionNew(req *jsonrpcRequest) {
	sid := "sess_" + uuid.NewString()
	sess, err := session.New(sid)
	if err != nil {
		_ = s.writeError(req.ID, codeInternalError, "Internal error", fmt.Sprintf("failed to create session: %v", err))
		return
	}
	if err := s.bindAgent(sid, sess); err != nil {
		_ = s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}
	s.log.Info("acp session created", "session", sid)
	_ = s.writeResult(req.ID, map[string]any{"sessionId": sid})
}

func (s *Server) handleSessionLoad(req *jsonrpcRequest) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.SessionID == "" {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", "sessionId required")
		return
	}

	sess, err := session.Load(p.SessionID)
	if err != nil {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", fmt.Sprintf("session not found: %v", err))
		return
	}
	if err := s.bindAgent(p.SessionID, sess); err != nil {
		_ = s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}

	// Replay history so the client can render the prior conversation.
	for _, msg := range sess.Messages {
		switch msg.Role {
		case "user":
			_ = s.sendMessageChunk(p.SessionID, "user_message_chunk", msg.Content)
		case "assistant":
			if msg.Content != "" {
				_ = s.sendMessageChunk(p.SessionID, "agent_message_chunk", msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				_ = s.sendToolCall(p.SessionID, tc)
			}
		case "tool":
			if len(msg.ToolCalls) == 1 {
				_ = s.sendToolResult(p.SessionID, msg.ToolCalls[0].ToolCallID, msg.Content)
			}
		}
	}
	_ = s.writeResult(req.ID, nil)
}

func (s *Server) handleSessionPrompt(ctx context.Context, req *jsonrpcRequest) {
	var p struct {
		SessionID string `json:"sessionId"`
		Prompt    []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"prompt"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}

	s.mu.Lock()
	a, ok := s.agents[p.SessionID]
	s.mu.Unlock()
	if !ok {
		_ = s.writeError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
		return
	}

	var parts []string
	for _, block := range p.Prompt {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, block.Text)
		}
	}
	userText := strings.Join(parts, "\n")

	callbacks := agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) {
			_ = s.sendMessageChunk(p.SessionID, "agent_message_chunk", message)
		},
		OnToolCall: func(tc session.ToolCall) {
			_ = s.sendToolCall(p.SessionID, tc)
		},
		OnToolResult: func(tc session.ToolCall, result string) {
			_ = s.sendToolResult(p.SessionID, tc.ToolCallID, result)
		},
		OnWarning: func(warning string) {
			s.log.Warn("acp turn warning", "session", p.SessionID, "warning", warning)
		},
	}

	if err := a.ProcessUserInput(ctx, userText, callbacks); err != nil {
		_ = s.writeError(req.ID, codeInternalError, "Internal error", fmt.Sprintf("turn failed: %v", err))
		return
	}
	_ = s.writeResult(req.ID, map[string]any{"stopReason": "end_turn"})
}

// bindAgent creates the orchestrator that owns the given session's history.
func (s *Server) bindAgent(sid string, sess *session.Session) error {
	a, err := agent.New(s.cfg, sess, sess.Toolset, s.toolMode, s.client, s.registry, s.controller)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	s.mu.Lock()
	s.agents[sid] = a
	s.mu.Unlock()
	return nil
}

func (s *Server) sendMessageChunk(sessionID, kind, text string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": kind,
			"content":       map[string]any{"type": "text", "text": text},
		},
	})
}

func (s *Server) sendToolCall(sessionID string, tc session.ToolCall) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_call",
			"toolCall": map[string]any{
				"id":   tc.ToolCallID,
				"name": tc.Name,
				"args": tc.Args,
			},
		},
	})
}

func (s *Server) sendToolResult(sessionID, toolCallID, result string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_result",
			"toolResult": map[string]any{
				"toolCallId": toolCallID,
				"result":     result,
			},
		},
	})
}
