// Package mcpserver exposes the editor and workspace tools to external agents
// over the Model Context Protocol.
package mcpserver

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"inkpilot/internal/events"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
	"inkpilot/internal/services"
)

const serverName = "inkpilot"

// Server binds every registry tool to one agent session. Document tools act
// on that session's editor; workspace tools go to its workspace.
type Server struct {
	agent   *services.AgentService
	session string
	mcp     *server.MCPServer
	logger  *slog.Logger
}

func New(agent *services.AgentService, sessionKey, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		agent:   agent,
		session: sessionKey,
		mcp:     server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
		logger:  logger,
	}
	for _, spec := range tools.All() {
		s.mcp.AddTool(toolFor(spec), s.handler(spec.Name))
	}
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("serving MCP over stdio", "session", s.session, "tools", len(tools.All()))
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func toolFor(spec tools.Spec) mcp.Tool {
	props := make(map[string]any, len(spec.Params))
	required := []string{}
	for _, p := range spec.Params {
		props[p.Name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description(),
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		d, toolReq, err := s.agent.Dispatcher(s.session)
		if err != nil {
			return nil, err
		}
		toolReq.Call = models.ToolCall{
			ID:   uuid.NewString(),
			Name: name,
			Args: req.GetArguments(),
		}
		res := d.Dispatch(events.WithSession(ctx, s.session), toolReq)
		if res.TreeChanged {
			if err := s.agent.SetTree(s.session, res.Tree); err != nil {
				return nil, err
			}
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Output), nil
		}
		return mcp.NewToolResultText(res.Output), nil
	}
}
