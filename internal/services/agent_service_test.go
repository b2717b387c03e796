package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkpilot/internal/agent"
	"inkpilot/internal/changes"
	"inkpilot/internal/llm/client"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
	"inkpilot/internal/repositories"
)

// scriptedBackend replays responses in order, then answers "done".
type scriptedBackend struct {
	mu        sync.Mutex
	responses []*client.ChatResponse
	requests  []client.ChatRequest
}

func (b *scriptedBackend) Complete(_ context.Context, req client.ChatRequest) (*client.ChatResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if len(b.responses) == 0 {
		return &client.ChatResponse{Type: client.ResponseMessage, Content: "done"}, nil
	}
	r := b.responses[0]
	b.responses = b.responses[1:]
	return r, nil
}

func staticFactory(b client.Backend) BackendFactory {
	return func(context.Context, *models.LLMModel) (client.Backend, error) { return b, nil }
}

func callTools(calls ...models.ToolCall) *client.ChatResponse {
	return &client.ChatResponse{Type: client.ResponseToolCalls, ToolCalls: calls}
}

func strPtr(s string) *string { return &s }

type agentFixture struct {
	svc      *AgentService
	sessions SessionService
	models   ModelConfigService
	store    WorkspaceStore
}

func newAgentFixture(t *testing.T, backend client.Backend) agentFixture {
	t.Helper()
	db := openDB(t)
	mc := newModelConfigService(repositories.NewModelSettingRepository(db), []byte(testCatalog))
	require.NoError(t, mc.Startup())
	f := agentFixture{
		sessions: NewSessionService(repositories.NewAgentSessionRepository(db)),
		models:   mc,
		store:    NewWorkspaceService(repositories.NewWorkspaceFileRepository(db), nil),
	}
	f.svc = NewAgentService(AgentServiceConfig{DefaultModel: "gpt-4.1", MaxRoundTrips: 5}, f.store, f.sessions, f.models, staticFactory(backend), nil)
	return f
}

func sampleSessionTree() tools.Tree {
	return tools.Tree{{ID: "1", Name: "a.md", Path: "a.md", Type: models.FileTypeFile, Content: strPtr("The cat sat.")}}
}

func TestAgentService_SuggestThenAccept(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		callTools(models.ToolCall{ID: "c1", Name: tools.OpenFileInEditor, Args: map[string]any{"path": "a.md"}}),
		callTools(models.ToolCall{ID: "c2", Name: tools.SuggestEdit, Args: map[string]any{"original": "cat", "suggested": "dog", "reason": "style"}}),
		{Type: client.ResponseMessage, Content: "Suggested a change."},
	}}
	f := newAgentFixture(t, backend)
	ctx := context.Background()

	info, err := f.svc.CreateSession(ctx, SessionOptions{Tree: sampleSessionTree()})
	require.NoError(t, err)
	assert.Equal(t, "openai|gpt-4.1", info.ModelKey)

	out, err := f.svc.Submit(ctx, info.Key, "Use dog instead of cat", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, agent.StateFinalAnswer, out.State)
	assert.Equal(t, 3, out.RoundTrips)

	require.Len(t, backend.requests, 3)
	assert.Equal(t, "gpt-4.1", backend.requests[0].Model)
	require.NotNil(t, backend.requests[2].Context.CurrentFile, "open file is sent as context")
	assert.Equal(t, "a.md", backend.requests[2].Context.CurrentFile.Path)

	list, err := f.svc.Changes(info.Key)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, changes.StatusPending, list[0].Status)

	hunks, err := f.svc.Hunks(info.Key, list[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, hunks)

	res, err := f.svc.Accept(ctx, info.Key, list[0].ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	ed, err := f.svc.Editor(info.Key)
	require.NoError(t, err)
	assert.Equal(t, "The dog sat.", ed.Document().Text())

	res, err = f.svc.Accept(ctx, info.Key, list[0].ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, changes.StatusAccepted, res.Change.Status)

	undone, err := f.svc.Undo(info.Key)
	require.NoError(t, err)
	assert.True(t, undone)
	assert.Equal(t, "The dog sat.", ed.Document().Text())
	assert.Empty(t, ed.Document().DiffUnits())

	got, err := f.svc.Session(info.Key)
	require.NoError(t, err)
	assert.Equal(t, agent.StateFinalAnswer, got.State)
	assert.Equal(t, "a.md", got.DocumentPath)
	assert.Equal(t, 0, got.Pending)
	assert.Equal(t, models.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Suggested a change.", got.Messages[len(got.Messages)-1].Content)
}

func TestAgentService_TranscriptSurvivesRestart(t *testing.T) {
	backend := &scriptedBackend{}
	f := newAgentFixture(t, backend)
	ctx := context.Background()

	info, err := f.svc.CreateSession(ctx, SessionOptions{ModelKey: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic|claude-sonnet-4-20250514", info.ModelKey)
	_, err = f.svc.Submit(ctx, info.Key, "hello", TurnOptions{})
	require.NoError(t, err)

	restarted := NewAgentService(AgentServiceConfig{DefaultModel: "gpt-4.1"}, f.store, f.sessions, f.models, staticFactory(backend), nil)
	got, err := restarted.Session(info.Key)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, "done", got.Messages[1].Content)

	rec, err := f.sessions.Load(info.Key)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", rec.Provider)

	require.NoError(t, restarted.Delete(info.Key))
	_, err = restarted.Session(info.Key)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// blockingBackend waits until the turn is cancelled.
type blockingBackend struct {
	entered chan struct{}
}

func (b *blockingBackend) Complete(ctx context.Context, _ client.ChatRequest) (*client.ChatResponse, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAgentService_OneTurnAtATimeAndStop(t *testing.T) {
	backend := &blockingBackend{entered: make(chan struct{}, 1)}
	f := newAgentFixture(t, backend)
	ctx := context.Background()

	info, err := f.svc.CreateSession(ctx, SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, f.svc.Start(ctx, info.Key, "write a poem", TurnOptions{}))

	select {
	case <-backend.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("backend was never called")
	}

	_, err = f.svc.Submit(ctx, info.Key, "again", TurnOptions{})
	assert.ErrorIs(t, err, ErrTurnInProgress)

	require.NoError(t, f.svc.Stop(info.Key))
	assert.Eventually(t, func() bool {
		got, err := f.svc.Session(info.Key)
		return err == nil && !got.Running && got.State == agent.StateCancelled
	}, 5*time.Second, 10*time.Millisecond)

	_, err = f.svc.Submit(ctx, "missing", "hi", TurnOptions{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Submit(ctx, info.Key, "   ", TurnOptions{})
	assert.Error(t, err)
}

func TestAgentService_WorkspaceDocument(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		callTools(models.ToolCall{ID: "c1", Name: tools.FSCreateFile, Args: map[string]any{"path": "notes/b.md", "content": "second"}}),
	}}
	f := newAgentFixture(t, backend)
	ctx := context.Background()

	_, err := f.store.Execute(ctx, "ws", tools.FSWriteFile, map[string]any{"path": "a.md", "content": "Hello **world**"})
	require.NoError(t, err)

	info, err := f.svc.CreateSession(ctx, SessionOptions{WorkspaceID: "ws"})
	require.NoError(t, err)

	info, err = f.svc.OpenDocument(ctx, info.Key, "a.md", "")
	require.NoError(t, err)
	assert.Equal(t, "a.md", info.DocumentPath)

	html, err := f.svc.DocumentHTML(info.Key)
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>world</strong>")

	sel, err := f.svc.Select(info.Key, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "Hello", sel.Text)
	_, err = f.svc.Select(info.Key, 0, 500)
	assert.Error(t, err)

	out, err := f.svc.Submit(ctx, info.Key, "add a note", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, agent.StateFinalAnswer, out.State)
	require.NotEmpty(t, backend.requests)
	assert.NotEmpty(t, backend.requests[0].Context.Folders)

	content, err := f.store.Execute(ctx, "ws", tools.FSReadFile, map[string]any{"path": "notes/b.md"})
	require.NoError(t, err)
	assert.Equal(t, "second", content)

	saved, err := f.svc.SaveDocument(ctx, info.Key)
	require.NoError(t, err)
	assert.Contains(t, saved, "a.md")
	content, err = f.store.Execute(ctx, "ws", tools.FSReadFile, map[string]any{"path": "a.md"})
	require.NoError(t, err)
	assert.Contains(t, content, "<strong>world</strong>")
}

func TestAgentService_WorkspaceNeedsStore(t *testing.T) {
	svc := NewAgentService(AgentServiceConfig{DefaultModel: "m"}, nil, nil, nil, staticFactory(&scriptedBackend{}), nil)
	_, err := svc.CreateSession(context.Background(), SessionOptions{WorkspaceID: "ws"})
	assert.Error(t, err)

	info, err := svc.CreateSession(context.Background(), SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "m", info.ModelKey)
	out, err := svc.Submit(context.Background(), info.Key, "hi", TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, agent.StateFinalAnswer, out.State)
}
