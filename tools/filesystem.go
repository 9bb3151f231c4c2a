package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quillagent/quill/sandbox"
)

// ReadFileTool reads the entire content of a file through the sandbox.
type ReadFileTool struct {
	sandbox *sandbox.Sandbox
}

func NewReadFileTool(sb *sandbox.Sandbox) *ReadFileTool {
	return &ReadFileTool{sandbox: sb}
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file."
}

func (t *ReadFileTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "path", Type: "string", Description: "Path of the file to read", Required: true},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	args, err := CheckParams(t.Parameters(), args)
	if err != nil {
		return Fail("%v", err)
	}
	// The sandbox returns the canonical path; all I/O uses that, never the
	// model-supplied input.
	path, err := t.sandbox.ValidateFileOperation(StringParam(args, "path"), sandbox.ModeRead)
	if err != nil {
		return Fail("%v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Fail("failed to read file '%s': %v", path, err)
	}
	res := Ok(string(content))
	res.Metadata = map[string]interface{}{"path": path, "bytes": len(content)}
	return res
}

// WriteFileTool writes content to a file, replacing it entirely.
type WriteFileTool struct {
	sandbox *sandbox.Sandbox
}

func NewWriteFileTool(sb *sandbox.Sandbox) *WriteFileTool {
	return &WriteFileTool{sandbox: sb}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely."
}

func (t *WriteFileTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "path", Type: "string", Description: "Path of the file to write", Required: true},
		{Name: "content", Type: "string", Description: "Full new content of the file", Required: true},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	args, err := CheckParams(t.Parameters(), args)
	if err != nil {
		return Fail("%v", err)
	}
	path, err := t.sandbox.ValidateFileOperation(StringParam(args, "path"), sandbox.ModeWrite)
	if err != nil {
		return Fail("%v", err)
	}
	content := StringParam(args, "content")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Fail("failed to write to file '%s': %v", path, err)
	}
	res := Ok(fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path))
	res.Metadata = map[string]interface{}{"path": path, "bytes": len(content)}
	return res
}

// ListDirTool lists the entries of a directory through the sandbox.
type ListDirTool struct {
	sandbox *sandbox.Sandbox
}

func NewListDirTool(sb *sandbox.Sandbox) *ListDirTool {
	return &ListDirTool{sandbox: sb}
}

func (t *ListDirTool) Name() string { return "list_dir" }
func (t *ListDirTool) Description() string {
	return "Lists the entries of a directory. Directories are suffixed with '/'."
}

func (t *ListDirTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "path", Type: "string", Description: "Directory to list", Required: false, Default: "."},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	args, err := CheckParams(t.Parameters(), args)
	if err != nil {
		return Fail("%v", err)
	}
	path, err := t.sandbox.ValidateDirectoryOperation(StringParam(args, "path"))
	if err != nil {
		return Fail("%v", err)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return Fail("failed to list directory '%s': %v", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	res := Ok(strings.Join(names, "\n"))
	res.Metadata = map[string]interface{}{"path": path, "entries": len(names)}
	return res
}

// SearchFilesTool searches file contents under a directory for a substring.
type SearchFilesTool struct {
	sandbox    *sandbox.Sandbox
	maxMatches int
}

func NewSearchFilesTool(sb *sandbox.Sandbox) *SearchFilesTool {
	return &SearchFilesTool{sandbox: sb, maxMatches: 200}
}

func (t *SearchFilesTool) Name() string { return "search_files" }
func (t *SearchFilesTool) Description() string {
	return "Searches files under a directory for lines containing a query string."
}

func (t *SearchFilesTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "query", Type: "string", Description: "Substring to search for", Required: true},
		{Name: "path", Type: "string", Description: "Directory to search under", Required: false, Default: "."},
	}
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	args, err := CheckParams(t.Parameters(), args)
	if err != nil {
		return Fail("%v", err)
	}
	root, err := t.sandbox.ValidateDirectoryOperation(StringParam(args, "path"))
	if err != nil {
		return Fail("%v", err)
	}
	query := StringParam(args, "query")

	var b strings.Builder
	matches := 0
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || matches >= t.maxMatches {
			return filepath.SkipAll
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		// Only files the sandbox would let the model read are searched.
		abs, err := t.sandbox.ValidateFileOperation(path, sandbox.ModeRead)
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				fmt.Fprintf(&b, "%s:%d: %s\n", abs, i+1, strings.TrimSpace(line))
				matches++
				if matches >= t.maxMatches {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return Fail("search cancelled: %v", ctx.Err())
	}
	if matches == 0 {
		return Ok(fmt.Sprintf("No matches for %q under %s", query, root))
	}
	res := Ok(b.String())
	res.Metadata = map[string]interface{}{"matches": matches}
	return res
}
