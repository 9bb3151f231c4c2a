package tools

import (
	"context"
	"testing"

	"github.com/quillagent/quill/config"
)

// stubTool is a minimal tool for registry tests.
type stubTool struct {
	name   string
	result ToolResult
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) Parameters() []ParameterSpec { return nil }
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	return s.result
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&stubTool{name: "a"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestGetIsIdempotent(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "a"}
	r.Register(tool)

	first, ok1 := r.Get("a")
	second, ok2 := r.Get("a")
	if !ok1 || !ok2 {
		t.Fatal("expected tool to be found")
	}
	if first != second || first != Tool(tool) {
		t.Error("Get should return the same instance on repeated calls")
	}
}

func TestListStableOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "zeta"})
	r.Register(&stubTool{name: "alpha"})
	r.Register(&stubTool{name: "mid"})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(list))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, tool := range list {
		if tool.Name() != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], tool.Name())
		}
	}
}

func TestActiveTools(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "read_file"})
	r.Register(&stubTool{name: "write_file"})

	ts := &config.Toolset{Name: "reads", Tools: []string{"read_file"}}
	active, err := r.ActiveTools(ts)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Name() != "read_file" {
		t.Errorf("unexpected active tools: %v", active)
	}

	if _, err := r.ActiveTools(&config.Toolset{Name: "bad", Tools: []string{"missing"}}); err == nil {
		t.Error("expected error for unregistered tool in toolset")
	}

	all, err := r.ActiveTools(nil)
	if err != nil || len(all) != 2 {
		t.Errorf("nil toolset should yield all tools, got %d (%v)", len(all), err)
	}
}

// stubServerTool mimics a tool bridged in from an external server.
type stubServerTool struct {
	stubTool
	server string
}

func (s *stubServerTool) Server() string { return s.server }

func TestActiveToolsServerReferences(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "read_file"})
	r.Register(&stubServerTool{stubTool: stubTool{name: "create_issue"}, server: "github"})
	r.Register(&stubServerTool{stubTool: stubTool{name: "list_repos"}, server: "github"})
	r.Register(&stubServerTool{stubTool: stubTool{name: "query"}, server: "db"})

	// server:tool selects one bridged tool.
	active, err := r.ActiveTools(&config.Toolset{Name: "qualified", Tools: []string{"github:create_issue"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Name() != "create_issue" {
		t.Errorf("unexpected tools for github:create_issue: %v", active)
	}

	// server.* expands to all of the server's tools in name order.
	active, err = r.ActiveTools(&config.Toolset{Name: "wild", Tools: []string{"github.*"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].Name() != "create_issue" || active[1].Name() != "list_repos" {
		t.Errorf("unexpected tools for github.*: %v", active)
	}

	// Mixed plain and qualified entries resolve together.
	active, err = r.ActiveTools(&config.Toolset{Name: "mixed", Tools: []string{"read_file", "db:query"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[1].Name() != "query" {
		t.Errorf("unexpected tools for mixed toolset: %v", active)
	}

	// Unknown qualified references fail like unknown plain names.
	if _, err := r.ActiveTools(&config.Toolset{Name: "bad", Tools: []string{"github:missing"}}); err == nil {
		t.Error("expected error for unknown server tool")
	}
	if _, err := r.ActiveTools(&config.Toolset{Name: "bad", Tools: []string{"gitlab.*"}}); err == nil {
		t.Error("expected error for unknown server wildcard")
	}
}

func TestCheckParams(t *testing.T) {
	specs := []ParameterSpec{
		{Name: "path", Type: "string", Required: true},
		{Name: "limit", Type: "number", Required: false, Default: 10},
	}

	args, err := CheckParams(specs, map[string]interface{}{"path": "/tmp/x"})
	if err != nil {
		t.Fatal(err)
	}
	if args["limit"] != 10 {
		t.Errorf("expected default applied, got %v", args["limit"])
	}

	if _, err := CheckParams(specs, map[string]interface{}{}); err == nil {
		t.Error("expected missing required parameter to fail")
	}
	if _, err := CheckParams(specs, map[string]interface{}{"path": 42}); err == nil {
		t.Error("expected wrong type to fail")
	}
}

func TestToolResultContent(t *testing.T) {
	if Ok("data").Content() != "data" {
		t.Error("successful result should return its data")
	}
	if Fail("boom").Content() != "Error: boom" {
		t.Error("failed result should prefix the error")
	}
}
