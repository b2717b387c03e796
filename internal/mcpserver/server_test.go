package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkpilot/internal/llm/client"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
	"inkpilot/internal/services"
)

func newTestServer(t *testing.T) (*Server, *services.AgentService, string) {
	t.Helper()
	agent := services.NewAgentService(services.AgentServiceConfig{DefaultModel: "test"}, nil, nil, nil,
		func(context.Context, *models.LLMModel) (client.Backend, error) {
			return client.BackendFunc(func(context.Context, client.ChatRequest) (*client.ChatResponse, error) {
				return &client.ChatResponse{Type: client.ResponseMessage, Content: "ok"}, nil
			}), nil
		}, nil)
	content := "Draft: the cat sat on the mat."
	info, err := agent.CreateSession(context.Background(), services.SessionOptions{
		Tree: tools.Tree{{ID: "1", Name: "draft.md", Path: "draft.md", Type: models.FileTypeFile, Content: &content}},
	})
	require.NoError(t, err)
	return New(agent, info.Key, "test", nil), agent, info.Key
}

func call(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.handler(name)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestToolFor_Schema(t *testing.T) {
	spec, ok := tools.Lookup(tools.SuggestEdit)
	require.True(t, ok)

	tool := toolFor(spec)
	assert.Equal(t, tools.SuggestEdit, tool.Name)
	assert.Equal(t, "object", tool.InputSchema.Type)
	assert.ElementsMatch(t, []string{"original", "suggested"}, tool.InputSchema.Required)
	occ, ok := tool.InputSchema.Properties["occurrence"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", occ["type"])
}

func TestServer_ListsEveryTool(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := s.MCP().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range tools.Names() {
		assert.Contains(t, string(b), `"`+name+`"`)
	}
}

func TestServer_EditsTheSessionDocument(t *testing.T) {
	s, agent, key := newTestServer(t)

	res := call(t, s, tools.OpenFileInEditor, map[string]any{"path": "draft.md"})
	assert.False(t, res.IsError, text(t, res))

	res = call(t, s, tools.SuggestEdit, map[string]any{"original": "cat", "suggested": "dog"})
	assert.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "pending review")

	pending, err := agent.Changes(key)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	res = call(t, s, tools.SuggestEdit, map[string]any{"original": "zebra", "suggested": "dog"})
	assert.True(t, res.IsError)
}

func TestServer_WorkspaceToolsUpdateSessionTree(t *testing.T) {
	s, _, _ := newTestServer(t)

	res := call(t, s, tools.FSCreateFile, map[string]any{"path": "notes/todo.md", "content": "- edit chapter 2"})
	require.False(t, res.IsError, text(t, res))

	res = call(t, s, tools.FSReadFile, map[string]any{"path": "notes/todo.md"})
	require.False(t, res.IsError, text(t, res))
	assert.Equal(t, "- edit chapter 2", text(t, res))

	res = call(t, s, tools.FSReadFile, map[string]any{"path": "missing.md"})
	assert.True(t, res.IsError)
}
