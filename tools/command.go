package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/quillagent/quill/cancel"
)

// ExecuteCommandTool runs an OS command matched against a regex allowlist.
// Every spawned process is registered with the cancellation controller so a
// full-level abort can terminate it.
type ExecuteCommandTool struct {
	allowedCommands []string
	controller      *cancel.Controller
	maxOutputBytes  int
}

func NewExecuteCommandTool(allowed []string, controller *cancel.Controller) *ExecuteCommandTool {
	return &ExecuteCommandTool{
		allowedCommands: allowed,
		controller:      controller,
		maxOutputBytes:  64 * 1024,
	}
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }

func (t *ExecuteCommandTool) Description() string {
	if len(t.allowedCommands) == 0 {
		return "Executes a shell command. No commands are currently allowed."
	}
	var b strings.Builder
	b.WriteString("Executes a shell command. Allowed command patterns:\n")
	for _, cmd := range t.allowedCommands {
		fmt.Fprintf(&b, "- %s\n", cmd)
	}
	return b.String()
}

func (t *ExecuteCommandTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "command", Type: "string", Description: "The command line to run", Required: true},
	}
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	args, err := CheckParams(t.Parameters(), args)
	if err != nil {
		return Fail("%v", err)
	}
	command := StringParam(args, "command")

	allowed, err := commandAllowed(command, t.allowedCommands)
	if err != nil {
		return Fail("%v", err)
	}
	if !allowed {
		return Fail("command '%s' is not in the list of allowed commands", command)
	}

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return Fail("empty command")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return Fail("failed to start command: %v", err)
	}
	var handle int
	if t.controller != nil {
		handle = t.controller.RegisterProcess(cmd)
	}
	runErr := cmd.Wait()
	if t.controller != nil {
		t.controller.UnregisterProcess(handle)
	}

	output := out.String()
	if len(output) > t.maxOutputBytes {
		output = output[:t.maxOutputBytes] + "\n... (output truncated)"
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return Fail("command cancelled: %v", ctx.Err())
		}
		return Fail("command execution failed: %v. Output:\n%s", runErr, output)
	}
	res := Ok(fmt.Sprintf("Command executed successfully. Output:\n%s", output))
	res.Metadata = map[string]interface{}{"command": command}
	return res
}

// commandAllowed checks a command line against the allowlist. Each entry is
// tried as a regex; an invalid regex falls back to exact string comparison.
func commandAllowed(command string, allowed []string) (bool, error) {
	if len(strings.Fields(command)) == 0 {
		return false, nil
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}
