package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/effective-security/mcpconverse/tools"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer returns an MCP server exposing the tools.
func NewServer(name, version string, list ...tools.Tool) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    name,
		Version: version,
	}, nil)
	for _, t := range list {
		server.AddTool(&mcpsdk.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: inputSchema(t),
		}, toolHandler(t))
	}
	return server
}

// Handler returns the streamable HTTP handler for the server.
func Handler(server *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, nil)
}

func inputSchema(t tools.Tool) map[string]any {
	s := t.InputSchema()
	if s == nil {
		return map[string]any{"type": "object"}
	}
	return s
}

func toolHandler(t tools.Tool) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult("invalid arguments: " + err.Error()), nil
			}
		}

		res := t.Invoke(ctx, args)
		logger.ContextKV(ctx, xlog.DEBUG,
			"tool", t.Name(),
			"is_error", res.IsError(),
		)
		return FromResult(res), nil
	}
}

// FromResult converts tools.Result into an MCP call result.
// Object payloads are also returned as structured content.
func FromResult(res tools.Result) *mcpsdk.CallToolResult {
	if res.IsError() {
		return errorResult(res.ErrorMessage())
	}
	js := res.JSON()
	out := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: js}},
	}
	if len(js) > 0 && js[0] == '{' {
		out.StructuredContent = json.RawMessage(js)
	}
	return out
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}
