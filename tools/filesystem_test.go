package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/config"
	"github.com/quillagent/quill/sandbox"
)

func testSandbox(root string) *sandbox.Sandbox {
	return sandbox.New(config.FilesystemAccess{
		AllowedRoots:      []string{root},
		AllowedExtensions: []string{".txt", ".go"},
		MaxReadBytes:      1 << 20,
	})
}

func TestReadFileTool(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "hello.txt")
	os.WriteFile(path, []byte("hello world"), 0644)

	tool := NewReadFileTool(testSandbox(root))
	res := tool.Execute(context.Background(), map[string]interface{}{"path": path})
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	if res.Data != "hello world" {
		t.Errorf("unexpected content %q", res.Data)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{})
	if res.Success || !strings.Contains(res.Error, "path") {
		t.Errorf("missing path should fail with a parameter error, got %+v", res)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{"path": filepath.Join(root, "..", "escape.txt")})
	if res.Success {
		t.Error("traversal path should fail")
	}
}

func TestWriteFileTool(t *testing.T) {
	root := t.TempDir()
	tool := NewWriteFileTool(testSandbox(root))
	path := filepath.Join(root, "out.txt")

	res := tool.Execute(context.Background(), map[string]interface{}{"path": path, "content": "abc"})
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "abc" {
		t.Errorf("file not written correctly: %q %v", data, err)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{"path": path})
	if res.Success {
		t.Error("missing content should fail")
	}
}

func TestListDirTool(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "b.txt"), []byte("x"), 0644)
	os.MkdirAll(filepath.Join(root, "a"), 0755)

	tool := NewListDirTool(testSandbox(root))
	res := tool.Execute(context.Background(), map[string]interface{}{"path": root})
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	lines := strings.Split(strings.TrimSpace(res.Data), "\n")
	if len(lines) != 2 || lines[0] != "a/" || lines[1] != "b.txt" {
		t.Errorf("unexpected listing %v", lines)
	}
}

func TestSearchFilesTool(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "one.txt"), []byte("alpha\nneedle here\n"), 0644)
	os.WriteFile(filepath.Join(root, "two.txt"), []byte("nothing\n"), 0644)

	tool := NewSearchFilesTool(testSandbox(root))
	res := tool.Execute(context.Background(), map[string]interface{}{"query": "needle", "path": root})
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	if !strings.Contains(res.Data, "one.txt:2") {
		t.Errorf("expected match location in output, got %q", res.Data)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{"query": "absent", "path": root})
	if !res.Success || !strings.Contains(res.Data, "No matches") {
		t.Errorf("expected no-match report, got %+v", res)
	}
}

func TestExecuteCommandToolAllowlist(t *testing.T) {
	controller := cancel.NewController(time.Second)
	tool := NewExecuteCommandTool([]string{`^echo\b.*`}, controller)

	res := tool.Execute(context.Background(), map[string]interface{}{"command": "echo hi"})
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	if !strings.Contains(res.Data, "hi") {
		t.Errorf("expected command output, got %q", res.Data)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{"command": "rm -rf /"})
	if res.Success || !strings.Contains(res.Error, "not in the list") {
		t.Errorf("disallowed command should fail, got %+v", res)
	}
}

func TestExecuteCommandToolNeverPanics(t *testing.T) {
	tool := NewExecuteCommandTool(nil, nil)
	res := tool.Execute(context.Background(), map[string]interface{}{"command": 42})
	if res.Success {
		t.Error("bad argument type should produce a failed result, not a panic")
	}
}
