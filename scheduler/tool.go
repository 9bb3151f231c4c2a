package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillagent/quill/tools"
)

// SpawnSubagentTool lets the model hand work off to a background subagent.
type SpawnSubagentTool struct {
	manager *SubagentManager
}

func NewSpawnSubagentTool(m *SubagentManager) *SpawnSubagentTool {
	return &SpawnSubagentTool{manager: m}
}

func (t *SpawnSubagentTool) Name() string { return "spawn_subagent" }
func (t *SpawnSubagentTool) Description() string {
	return "Start a background subagent working on an independent task. Returns the task id to check on later."
}
func (t *SpawnSubagentTool) Parameters() []tools.ParameterSpec {
	return []tools.ParameterSpec{
		{Name: "name", Type: "string", Description: "Short name for the task", Required: true},
		{Name: "prompt", Type: "string", Description: "Instructions for the subagent", Required: true},
		{Name: "priority", Type: "string", Description: "high, normal, or low", Default: "normal"},
	}
}

func (t *SpawnSubagentTool) Execute(ctx context.Context, args map[string]interface{}) tools.ToolResult {
	args, err := tools.CheckParams(t.Parameters(), args)
	if err != nil {
		return tools.Fail("%v", err)
	}
	name := tools.StringParam(args, "name")
	prompt := tools.StringParam(args, "prompt")
	priority := ParsePriority(tools.StringParam(args, "priority"))

	sub, err := t.manager.Spawn(name, prompt, priority, nil)
	if err != nil {
		return tools.Fail("failed to spawn subagent: %v", err)
	}
	return tools.Ok(fmt.Sprintf("Started background task %s (subagent %s) working on %q.", sub.TaskID, sub.ID, name))
}

// TaskStatusTool reports background task state back into the conversation.
type TaskStatusTool struct {
	scheduler *Scheduler
}

func NewTaskStatusTool(s *Scheduler) *TaskStatusTool {
	return &TaskStatusTool{scheduler: s}
}

func (t *TaskStatusTool) Name() string { return "task_status" }
func (t *TaskStatusTool) Description() string {
	return "Check on background tasks. With a task_id, reports that task; otherwise summarizes all tasks."
}
func (t *TaskStatusTool) Parameters() []tools.ParameterSpec {
	return []tools.ParameterSpec{
		{Name: "task_id", Type: "string", Description: "Task to inspect (optional)"},
	}
}

func (t *TaskStatusTool) Execute(ctx context.Context, args map[string]interface{}) tools.ToolResult {
	args, err := tools.CheckParams(t.Parameters(), args)
	if err != nil {
		return tools.Fail("%v", err)
	}

	if id := tools.StringParam(args, "task_id"); id != "" {
		task, ok := t.scheduler.Task(id)
		if !ok {
			return tools.Fail("no task with id '%s'", id)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Task %s (%s): %s, progress %d%%", task.ID, task.Name, task.Status, task.Progress)
		if task.Result != "" {
			fmt.Fprintf(&b, "\nResult: %s", task.Result)
		}
		if task.Error != "" {
			fmt.Fprintf(&b, "\nError: %s", task.Error)
		}
		return tools.Ok(b.String())
	}

	st := t.scheduler.Stats()
	return tools.Ok(fmt.Sprintf(
		"Tasks: %d total, %d queued, %d running, %d completed, %d failed, %d cancelled.",
		st.Total, st.Queued, st.Running, st.Completed, st.Failed, st.Cancelled))
}
