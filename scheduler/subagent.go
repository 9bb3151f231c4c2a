package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/quillagent/quill/agent"
	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/errors"
	"github.com/quillagent/quill/llm"
	"github.com/quillagent/quill/session"
	"github.com/quillagent/quill/tools"
)

// subagentInstruction opens every subagent's history so the model knows it is
// working unattended.
const subagentInstruction = "You are a background subagent. Work autonomously on the assigned task, " +
	"use tools as needed, and finish with a concise report of what you did."

type SubagentState string

const (
	SubagentActive    SubagentState = "active"
	SubagentCompleted SubagentState = "completed"
	SubagentFailed    SubagentState = "failed"
)

// Subagent is an independently running orchestrator bound to a background
// task. Its state mirrors the owning task's status, and it stays addressable
// for follow-up turns after the task finishes.
type Subagent struct {
	ID     string
	Name   string
	TaskID string

	agent     *agent.Agent
	scheduler *Scheduler

	mu sync.Mutex // serializes turns on the bound agent
}

// State derives the subagent lifecycle from its task.
func (s *Subagent) State() SubagentState {
	task, ok := s.scheduler.Task(s.TaskID)
	if !ok {
		return SubagentFailed
	}
	switch task.Status {
	case StatusCompleted:
		return SubagentCompleted
	case StatusFailed, StatusCancelled:
		return SubagentFailed
	default:
		return SubagentActive
	}
}

// History returns a copy of the subagent's conversation so far.
func (s *Subagent) History() []session.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Message, len(s.agent.Session.Messages))
	copy(out, s.agent.Session.Messages)
	return out
}

// runTurn drives one full agent turn and returns the final assistant text.
// taskID is passed explicitly because the first turn can start before Spawn
// has recorded it on the subagent.
func (s *Subagent) runTurn(ctx context.Context, taskID, input string, onEvent func(Event)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last string
	callbacks := agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) { last = message },
	}
	if onEvent != nil {
		callbacks.OnToolResult = func(tc session.ToolCall, result string) {
			onEvent(Event{TaskID: taskID, Type: EventProgress, Payload: "ran tool " + tc.Name})
		}
	}
	if err := s.agent.ProcessUserInput(ctx, input, callbacks); err != nil {
		return "", err
	}
	return last, nil
}

// SubagentManager spawns and tracks subagents over a shared scheduler and
// tool registry.
type SubagentManager struct {
	cfg        *config.Config
	client     llm.LLMClient
	registry   *tools.Registry
	controller *cancel.Controller
	scheduler  *Scheduler

	mu        sync.Mutex
	subagents map[string]*Subagent
}

func NewSubagentManager(cfg *config.Config, client llm.LLMClient, registry *tools.Registry, controller *cancel.Controller, sched *Scheduler) *SubagentManager {
	return &SubagentManager{
		cfg:        cfg,
		client:     client,
		registry:   registry,
		controller: controller,
		scheduler:  sched,
		subagents:  map[string]*Subagent{},
	}
}

// Spawn creates a subagent and schedules its first turn as a background
// task. The returned subagent is immediately addressable; its work starts
// when the scheduler grants a slot.
func (m *SubagentManager) Spawn(name, prompt string, priority Priority, onEvent func(Event)) (*Subagent, error) {
	sess := session.NewInMemory("subagent-" + name)
	sess.AddMessage(session.Message{Role: "system", Content: subagentInstruction})

	a, err := agent.New(m.cfg, sess, "", agent.ModeAuto, m.client, m.registry, m.controller)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create subagent orchestrator")
	}

	sub := &Subagent{
		ID:        uuid.NewString(),
		Name:      name,
		agent:     a,
		scheduler: m.scheduler,
	}

	task := m.scheduler.AddTask(TaskSpec{
		Name:        name,
		Description: prompt,
		Priority:    priority,
		OnEvent:     onEvent,
		Executor: func(ctx context.Context, t *Task) (string, error) {
			return sub.runTurn(ctx, t.ID, prompt, onEvent)
		},
	})
	sub.TaskID = task.ID

	m.mu.Lock()
	m.subagents[sub.ID] = sub
	m.mu.Unlock()
	return sub, nil
}

// Get returns a tracked subagent by id.
func (m *SubagentManager) Get(id string) (*Subagent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subagents[id]
	return sub, ok
}

// SendToSubagent runs a follow-up turn on an existing subagent's
// conversation, blocking until the turn finishes. Follow-ups wait for any
// in-flight turn rather than interleaving with it.
func (m *SubagentManager) SendToSubagent(ctx context.Context, id, message string) (string, error) {
	sub, ok := m.Get(id)
	if !ok {
		return "", errors.New("no subagent with id '%s'", id)
	}
	return sub.runTurn(ctx, sub.TaskID, message, nil)
}

// List returns the tracked subagents in no particular order.
func (m *SubagentManager) List() []*Subagent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Subagent, 0, len(m.subagents))
	for _, sub := range m.subagents {
		out = append(out, sub)
	}
	return out
}
