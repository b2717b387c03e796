package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkpilot/internal/editor"
	"inkpilot/internal/llm/client"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
)

// scriptedBackend replays responses in order and records every request.
type scriptedBackend struct {
	mu        sync.Mutex
	responses []*client.ChatResponse
	err       error
	requests  []client.ChatRequest
}

func (b *scriptedBackend) Complete(_ context.Context, req client.ChatRequest) (*client.ChatResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if len(b.responses) == 0 {
		return &client.ChatResponse{Type: client.ResponseMessage, Content: "done"}, nil
	}
	r := b.responses[0]
	b.responses = b.responses[1:]
	return r, nil
}

type dispatcherFunc func(ctx context.Context, req tools.Request) tools.Result

func (f dispatcherFunc) Dispatch(ctx context.Context, req tools.Request) tools.Result {
	return f(ctx, req)
}

func toolCalls(calls ...models.ToolCall) *client.ChatResponse {
	return &client.ChatResponse{Type: client.ResponseToolCalls, ToolCalls: calls}
}

func tc(id, name string, args map[string]any) models.ToolCall {
	return models.ToolCall{ID: id, Name: name, Args: args}
}

func strPtr(s string) *string { return &s }

func sampleTree() tools.Tree {
	return tools.Tree{{ID: "1", Name: "a.md", Path: "a.md", Type: models.FileTypeFile, Content: strPtr("The cat sat.")}}
}

// assertPaired checks that every tool call is answered exactly once.
func assertPaired(t *testing.T, msgs []models.ChatMessage) {
	t.Helper()
	answered := map[string]int{}
	for _, m := range msgs {
		if m.Role == models.RoleTool {
			answered[m.ToolCallID]++
		}
	}
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			assert.Equal(t, 1, answered[c.ID], "tool call %s", c.ID)
		}
	}
}

func TestRun_FinalAnswer(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{{Type: client.ResponseMessage, Content: "Hi!"}}}
	var states []State
	loop := NewLoop(backend, dispatcherFunc(nil), ObserverFuncs{OnState: func(s State) { states = append(states, s) }}, nil)

	out := loop.Run(context.Background(), Turn{
		Messages: []models.ChatMessage{models.UserMessage("hello")},
		Config:   Config{Model: "m", Memory: "likes brevity"},
	})
	assert.Equal(t, StateFinalAnswer, out.State)
	assert.Equal(t, 1, out.RoundTrips)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "Hi!", out.Messages[1].Content)
	assert.NotEmpty(t, out.Messages[1].CreatedAt)
	assert.Equal(t, []State{StateAwaitingModel, StateFinalAnswer}, states)
	assert.Equal(t, "likes brevity", backend.requests[0].Context.Memory)
}

func TestRun_IterationLimit(t *testing.T) {
	backend := &scriptedBackend{}
	for i := range 20 {
		backend.responses = append(backend.responses, toolCalls(tc(fmt.Sprintf("c%d", i), tools.GetSelection, map[string]any{})))
	}
	var dispatched int
	d := dispatcherFunc(func(context.Context, tools.Request) tools.Result {
		dispatched++
		return tools.Result{Output: "{}"}
	})

	out := NewLoop(backend, d, nil, nil).Run(context.Background(), Turn{
		Messages: []models.ChatMessage{models.UserMessage("loop forever")},
	})
	assert.Equal(t, StateIterationLimit, out.State)
	assert.NoError(t, out.Err)
	assert.Len(t, backend.requests, DefaultMaxRoundTrips)
	assert.Equal(t, DefaultMaxRoundTrips, dispatched)
	assertPaired(t, out.Messages)
}

func TestRun_CustomCap(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(tc("a", tools.GetSelection, nil)),
		toolCalls(tc("b", tools.GetSelection, nil)),
	}}
	d := dispatcherFunc(func(context.Context, tools.Request) tools.Result { return tools.Result{Output: "ok"} })
	out := NewLoop(backend, d, nil, nil).Run(context.Background(), Turn{Config: Config{MaxRoundTrips: 1}})
	assert.Equal(t, StateIterationLimit, out.State)
	assert.Len(t, backend.requests, 1)
}

func TestRun_AppendedMessageIsSnapshot(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(tc("c1", tools.GetSelection, nil)),
	}}
	var kept []models.ChatMessage
	obs := ObserverFuncs{OnMessage: func(m models.ChatMessage) { kept = append(kept, m) }}
	d := dispatcherFunc(func(context.Context, tools.Request) tools.Result { return tools.Result{Output: "{}"} })

	out := NewLoop(backend, d, obs, nil).Run(context.Background(), Turn{
		Messages: []models.ChatMessage{models.UserMessage("where am I")},
	})
	require.Equal(t, StateFinalAnswer, out.State)

	var emitted, final *models.ChatMessage
	for i := range kept {
		if len(kept[i].ToolCalls) > 0 {
			emitted = &kept[i]
			break
		}
	}
	for i := range out.Messages {
		if len(out.Messages[i].ToolCalls) > 0 {
			final = &out.Messages[i]
			break
		}
	}
	require.NotNil(t, emitted)
	require.NotNil(t, final)
	assert.Equal(t, models.ToolStatusPending, emitted.ToolCalls[0].Status)
	assert.Equal(t, models.ToolStatusCompleted, final.ToolCalls[0].Status)
}

func TestRun_SequentialOpenThenSuggest(t *testing.T) {
	ed := editor.New(nil)
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(
			tc("open", tools.OpenFileInEditor, map[string]any{"path": "a.md"}),
			tc("edit", tools.SuggestEdit, map[string]any{"original": "cat", "suggested": "dog"}),
		),
	}}
	var statuses []string
	obs := ObserverFuncs{OnTool: func(c models.ToolCall) { statuses = append(statuses, c.ID+":"+string(c.Status)) }}

	out := NewLoop(backend, tools.NewDispatcher(ed, nil), obs, nil).Run(context.Background(), Turn{
		Messages: []models.ChatMessage{models.UserMessage("swap cat for dog")},
		Tree:     sampleTree(),
	})
	require.Equal(t, StateFinalAnswer, out.State)
	assertPaired(t, out.Messages)

	results := out.Messages[2:4]
	assert.False(t, results[0].IsError, results[0].Content)
	assert.False(t, results[1].IsError, results[1].Content)
	assert.Equal(t, "The dog sat.", ed.Document().Text())
	assert.Equal(t, 1, ed.Engine().Store().PendingCount())
	assert.Equal(t, []string{
		"open:running", "open:completed",
		"edit:running", "edit:completed",
	}, statuses)

	calls := out.Messages[1].ToolCalls
	assert.Equal(t, models.ToolStatusCompleted, calls[0].Status)
	assert.Equal(t, models.ToolStatusCompleted, calls[1].Status)

	// The tree listing reaches the model when no workspace id is set.
	require.NotEmpty(t, backend.requests[0].Context.Folders)
	assert.Equal(t, "a.md", backend.requests[0].Context.Folders[0].Path)
}

func TestRun_SuggestBeforeOpenFails(t *testing.T) {
	ed := editor.New(nil)
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(
			tc("edit", tools.SuggestEdit, map[string]any{"original": "cat", "suggested": "dog"}),
			tc("open", tools.OpenFileInEditor, map[string]any{"path": "a.md"}),
		),
	}}

	out := NewLoop(backend, tools.NewDispatcher(ed, nil), nil, nil).Run(context.Background(), Turn{Tree: sampleTree()})
	require.Equal(t, StateFinalAnswer, out.State)

	edit := out.Messages[1]
	require.Equal(t, models.RoleTool, edit.Role)
	assert.True(t, edit.IsError)
	assert.Contains(t, edit.Content, "not found")
	assert.Equal(t, models.ToolStatusError, out.Messages[0].ToolCalls[0].Status)
	assert.Equal(t, "The cat sat.", ed.Document().Text())
	assert.Equal(t, 0, ed.Engine().Store().PendingCount())
}

func TestRun_LocalTreeMutationReplacesTree(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(tc("w", tools.FSCreateFile, map[string]any{"path": "notes/b.md", "content": "hi"})),
		toolCalls(tc("r", tools.FSReadFile, map[string]any{"path": "notes/b.md"})),
	}}
	var trees int
	obs := ObserverFuncs{OnTree: func(tools.Tree) { trees++ }}

	in := sampleTree()
	out := NewLoop(backend, tools.NewDispatcher(nil, nil), obs, nil).Run(context.Background(), Turn{Tree: in})
	require.Equal(t, StateFinalAnswer, out.State)
	assert.Equal(t, 1, trees)
	assert.NotNil(t, out.Tree.Find("notes/b.md"))
	assert.Nil(t, in.Find("notes/b.md"))

	read := out.Messages[len(out.Messages)-2]
	assert.Equal(t, "hi", read.Content)
}

func TestRun_WorkspaceMutationRequestsRefresh(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(tc("w", tools.FSWriteFile, map[string]any{"path": "a.md", "content": "x"})),
	}}
	d := dispatcherFunc(func(_ context.Context, req tools.Request) tools.Result {
		assert.Equal(t, "ws1", req.WorkspaceID)
		return tools.Result{Output: "Wrote a.md", RefreshFiles: true}
	})
	var refreshed bool
	obs := ObserverFuncs{OnRefresh: func() { refreshed = true }}

	out := NewLoop(backend, d, obs, nil).Run(context.Background(), Turn{Config: Config{WorkspaceID: "ws1"}})
	assert.Equal(t, StateFinalAnswer, out.State)
	assert.True(t, refreshed)
}

func TestRun_PanickingToolIsReported(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(tc("p", tools.InsertText, map[string]any{"text": "x"})),
	}}
	out := NewLoop(backend, tools.NewDispatcher(panicky{}, nil), nil, nil).Run(context.Background(), Turn{})
	require.Equal(t, StateFinalAnswer, out.State)
	result := out.Messages[1]
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Error executing insert_text")
	assert.Len(t, backend.requests, 2)
}

type panicky struct{ tools.DocumentTools }

func (panicky) InsertText(context.Context, string) (string, error) { panic("boom") }

func TestRun_CancelMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &scriptedBackend{responses: []*client.ChatResponse{
		toolCalls(
			tc("1", tools.GetSelection, nil),
			tc("2", tools.GetSelection, nil),
			tc("3", tools.GetSelection, nil),
		),
	}}
	var toolCtxErr error
	d := dispatcherFunc(func(toolCtx context.Context, req tools.Request) tools.Result {
		cancel()
		toolCtxErr = toolCtx.Err()
		return tools.Result{Output: "ran " + req.Call.ID}
	})

	out := NewLoop(backend, d, nil, nil).Run(ctx, Turn{})
	assert.Equal(t, StateCancelled, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.NoError(t, toolCtxErr)
	assert.Len(t, backend.requests, 1)
	assertPaired(t, out.Messages)

	results := out.Messages[1:]
	require.Len(t, results, 3)
	assert.Equal(t, "ran 1", results[0].Content)
	assert.Equal(t, CancelledBeforeExecution, results[1].Content)
	assert.Equal(t, CancelledBeforeExecution, results[2].Content)
	assert.True(t, results[2].IsError)
}

func TestRun_CancelDuringToolDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &scriptedBackend{responses: []*client.ChatResponse{toolCalls(tc("1", tools.GetSelection, nil))}}
	d := dispatcherFunc(func(context.Context, tools.Request) tools.Result {
		t.Fatal("tool must not run")
		return tools.Result{}
	})
	obs := ObserverFuncs{OnState: func(s State) {
		if s == StateExecutingTools {
			cancel()
		}
	}}

	out := NewLoop(backend, d, obs, nil).Run(ctx, Turn{Config: Config{ToolDelay: time.Hour}})
	assert.Equal(t, StateCancelled, out.State)
	assertPaired(t, out.Messages)
	assert.Equal(t, CancelledBeforeExecution, out.Messages[1].Content)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &scriptedBackend{}
	out := NewLoop(backend, dispatcherFunc(nil), nil, nil).Run(ctx, Turn{})
	assert.Equal(t, StateCancelled, out.State)
	assert.Empty(t, backend.requests)
}

func TestRun_BackendError(t *testing.T) {
	backend := &scriptedBackend{err: errors.New("503 from upstream")}
	out := NewLoop(backend, dispatcherFunc(nil), nil, nil).Run(context.Background(), Turn{
		Messages: []models.ChatMessage{models.UserMessage("hi")},
	})
	assert.Equal(t, StateErrored, out.State)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "Error: 503 from upstream", out.Messages[1].Content)
	assert.Equal(t, models.RoleAssistant, out.Messages[1].Role)
	assert.Len(t, backend.requests, 1)
}

func TestRun_ErrorResponse(t *testing.T) {
	backend := &scriptedBackend{responses: []*client.ChatResponse{{Type: client.ResponseError, Content: "context too long"}}}
	out := NewLoop(backend, dispatcherFunc(nil), nil, nil).Run(context.Background(), Turn{})
	assert.Equal(t, StateErrored, out.State)
	assert.EqualError(t, out.Err, "context too long")
	assert.Equal(t, "Error: context too long", out.Messages[0].Content)
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateIterationLimit.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateAwaitingModel.Terminal())
	assert.False(t, StateIdle.Terminal())
}
