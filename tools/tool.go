package tools

import (
	"context"
	"fmt"
	"strings"
)

// ParameterSpec declares one parameter of a tool for schema generation and
// pre-call validation.
type ParameterSpec struct {
	Name        string
	Type        string // "string", "number", "boolean", "object", "array"
	Description string
	Required    bool
	Default     interface{}
}

// ToolResult is the only thing a tool execution produces. Failures are
// reported through Success=false plus a human-readable Error; nothing is
// thrown across the dispatch boundary.
type ToolResult struct {
	Success  bool                   `json:"success"`
	Data     string                 `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Content returns the text fed back to the model for this result.
func (r ToolResult) Content() string {
	if r.Success {
		return r.Data
	}
	return "Error: " + r.Error
}

// Ok builds a successful result.
func Ok(data string) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// Fail builds a failed result with a formatted message.
func Fail(format string, a ...interface{}) ToolResult {
	return ToolResult{Success: false, Error: fmt.Sprintf(format, a...)}
}

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ParameterSpec
	Execute(ctx context.Context, args map[string]interface{}) ToolResult
}

// CheckParams validates args against the specs: required parameters must be
// present with a compatible type, and absent optional parameters receive their
// defaults. It returns a normalized copy of args.
func CheckParams(specs []ParameterSpec, args map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	var problems []string
	for _, spec := range specs {
		v, present := out[spec.Name]
		if !present || v == nil {
			if spec.Required {
				problems = append(problems, fmt.Sprintf("missing required parameter '%s'", spec.Name))
			} else if spec.Default != nil {
				out[spec.Name] = spec.Default
			}
			continue
		}
		if !typeMatches(spec.Type, v) {
			problems = append(problems, fmt.Sprintf("parameter '%s' must be a %s", spec.Name, spec.Type))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return out, nil
}

// StringParam extracts a string parameter from validated args.
func StringParam(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func typeMatches(declared string, v interface{}) bool {
	switch declared {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	default:
		return true
	}
}
