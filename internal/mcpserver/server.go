// Package mcpserver exposes the analytics tool registry over the Model
// Context Protocol, so external agents can call the same operations the
// chat session dispatches internally.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vendabot/vendabot/internal/logger"
	"github.com/vendabot/vendabot/pkg/tools"
)

// New builds an MCP server exposing every tool in the registry.
func New(registry *tools.Registry, version string) *server.MCPServer {
	s := server.NewMCPServer("vendabot-sales", version, server.WithToolCapabilities(false))
	for _, t := range registry.List() {
		s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), t.Parameters()), Handler(t))
		logger.For("mcpserver").Info("registered tool", "tool", t.Name())
	}
	return s
}

// Handler adapts a registry tool to an MCP tool handler. Tool failures
// become MCP error results, never protocol errors.
func Handler(t tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		out, err := t.Run(ctx, string(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// ServeStdio serves the MCP protocol on stdin/stdout until the client
// disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
