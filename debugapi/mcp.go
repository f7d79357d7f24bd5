package debugapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// endpoint is a tool body: decoded request in, JSON-encodable response out.
type endpoint func(ctx context.Context, req any) (any, error)

// RegisterMCP registers the debug tools on an MCP server.
func (a *API) RegisterMCP(srv *mcp.Server) {
	a.registerClassMapTool(srv)
	a.registerStatesTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// registerTool adapts an endpoint to an MCP tool. Decode and endpoint
// errors become tool errors, not protocol errors.
func registerTool(srv *mcp.Server, tool *mcp.Tool, ep endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := ep(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- classmap ---

type classMapReq struct {
	Page string `json:"page"`
}

func (a *API) registerClassMapTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "glyphwatch_classmap",
		Description: "List the generated CSS classes learned on each overlaid page and the task state each stands for.",
		InputSchema: inputSchema(map[string]any{
			"page": map[string]any{"type": "string", "description": "Restrict to one page id"},
		}, nil),
	}

	ep := func(_ context.Context, req any) (any, error) {
		return a.ClassMap(req.(*classMapReq).Page), nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r classMapReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &r, nil
	}

	registerTool(srv, tool, ep, decode)
}

// --- states ---

func (a *API) registerStatesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "glyphwatch_states",
		Description: "List the task states with their fill colour, symbol and label.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	ep := func(_ context.Context, _ any) (any, error) {
		return a.States(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	registerTool(srv, tool, ep, decode)
}
