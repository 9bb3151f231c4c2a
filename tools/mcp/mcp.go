// Package mcp bridges tools served by external MCP (Model Context Protocol)
// server subprocesses into the agent's tool registry.
package mcp

import (
	"context"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quillagent/quill/cancel"
	"github.com/quillagent/quill/errors"
	"github.com/quillagent/quill/tools"
)

// Client manages the connection to a single MCP server subprocess and exposes
// its tools through the tools.Tool interface.
type Client struct {
	Name       string
	cmd        *exec.Cmd
	conn       *mcpsdk.ClientSession
	tools      map[string]*BridgedTool
	procHandle int
	controller *cancel.Controller
}

// NewClient starts the MCP server subprocess, discovers its tools, and
// registers the subprocess with the cancellation controller for bulk
// termination.
func NewClient(ctx context.Context, name, command string, args []string, controller *cancel.Controller) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "quill", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	c := &Client{
		Name:       name,
		cmd:        cmd,
		conn:       conn,
		tools:      make(map[string]*BridgedTool),
		controller: controller,
	}
	if controller != nil {
		c.procHandle = controller.RegisterProcess(cmd)
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			c.Stop()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			c.tools[t.Name] = &BridgedTool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				params:      specsFromSchema(t.InputSchema),
				client:      c,
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}
	return c, nil
}

// Tool returns a bridged tool by its short (server-local) name.
func (c *Client) Tool(name string) (*BridgedTool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Tools returns every bridged tool.
func (c *Client) Tools() []*BridgedTool {
	out := make([]*BridgedTool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.controller != nil {
		c.controller.UnregisterProcess(c.procHandle)
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// BridgedTool satisfies tools.Tool for a tool living in an MCP server.
type BridgedTool struct {
	serverName  string
	toolName    string
	description string
	params      []tools.ParameterSpec
	client      *Client
}

func (t *BridgedTool) Name() string                      { return t.toolName }
func (t *BridgedTool) Description() string               { return t.description }
func (t *BridgedTool) Parameters() []tools.ParameterSpec { return t.params }

// Server names the MCP server this tool belongs to, letting toolsets select
// it as "server:tool" or "server.*".
func (t *BridgedTool) Server() string { return t.serverName }

func (t *BridgedTool) Execute(ctx context.Context, args map[string]interface{}) tools.ToolResult {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return tools.Fail("failed to call MCP tool '%s' on '%s': %v", t.toolName, t.serverName, err)
	}
	var out string
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	if result.IsError {
		return tools.Fail("%s", out)
	}
	res := tools.Ok(out)
	res.Metadata = map[string]interface{}{"server": t.serverName}
	return res
}

// specsFromSchema flattens the top level of an MCP input schema into
// ParameterSpecs so the registry can surface them to providers.
func specsFromSchema(schema *jsonschema.Schema) []tools.ParameterSpec {
	if schema == nil {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	specs := make([]tools.ParameterSpec, 0, len(schema.Properties))
	for name, prop := range schema.Properties {
		spec := tools.ParameterSpec{Name: name, Type: "string", Required: required[name]}
		if prop != nil {
			if prop.Type != "" {
				spec.Type = prop.Type
			}
			spec.Description = prop.Description
		}
		specs = append(specs, spec)
	}
	return specs
}
