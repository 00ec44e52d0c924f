// Package mcpserver publishes the governed tool surface over MCP stdio so
// any MCP-speaking LLM host can drive the middleware. Every call routes
// through the driver and therefore through the full hook pipeline.
package mcpserver

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	sdk_mcp "github.com/mark3labs/mcp-go/mcp"
	sdk_server "github.com/mark3labs/mcp-go/server"

	"github.com/intentgate/intent-gate/internal/driver"
	"github.com/intentgate/intent-gate/internal/hook"
)

// Server wraps one MCP stdio endpoint. A stdio transport serves exactly one
// client, so the server owns a single session id allocated at startup.
type Server struct {
	drv       *driver.Driver
	inner     *sdk_server.MCPServer
	sessionID string
}

// New builds the MCP server and registers every tool from the driver's
// registry, using each tool's own JSON schema.
func New(drv *driver.Driver, name, version string) *Server {
	s := &Server{
		drv:       drv,
		sessionID: uuid.NewString(),
	}
	s.inner = sdk_server.NewMCPServer(name, version,
		sdk_server.WithToolCapabilities(false),
	)

	for _, t := range drv.Registry.List() {
		sdkTool := sdk_mcp.NewToolWithRawSchema(t.Name(), t.Description(), t.InputSchema())
		s.inner.AddTool(sdkTool, s.handler(t.Name()))
	}
	log.Printf("[MCPServer] Registered %d governed tools (session %s)", len(drv.Registry.List()), s.sessionID)
	return s
}

// handler adapts one registry tool into an MCP tool handler.
func (s *Server) handler(toolName string) sdk_server.ToolHandlerFunc {
	return func(ctx context.Context, req sdk_mcp.CallToolRequest) (*sdk_mcp.CallToolResult, error) {
		call := &hook.ToolCall{
			ID:   uuid.NewString(),
			Name: toolName,
			Args: req.GetArguments(),
		}
		// The host forwards the user's words so the gate can classify them.
		if msg, ok := call.Args["user_message"].(string); ok && msg != "" {
			s.drv.RecordUserMessage(s.sessionID, msg)
			delete(call.Args, "user_message")
		}

		result := s.drv.Dispatch(ctx, s.sessionID, call)
		if result.Error != "" {
			return sdk_mcp.NewToolResultError(result.Error), nil
		}
		return sdk_mcp.NewToolResultText(result.Output), nil
	}
}

// ServeStdio blocks, serving the MCP protocol on stdin/stdout until the
// client disconnects.
func (s *Server) ServeStdio() error {
	defer s.drv.EndSession(s.sessionID)
	if err := sdk_server.ServeStdio(s.inner); err != nil {
		return fmt.Errorf("mcpserver: serve stdio: %w", err)
	}
	return nil
}
