// Package agent drives the multi-turn conversation between the chat backend
// and the tool dispatcher.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"inkpilot/internal/llm/client"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
)

type State string

const (
	StateIdle           State = "idle"
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateFinalAnswer    State = "final_answer"
	StateCancelled      State = "cancelled"
	StateErrored        State = "errored"
	StateIterationLimit State = "iteration_limit"
)

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool {
	switch s {
	case StateFinalAnswer, StateCancelled, StateErrored, StateIterationLimit:
		return true
	}
	return false
}

const (
	DefaultMaxRoundTrips = 10
	// CancelledBeforeExecution is the result recorded for calls that never ran.
	CancelledBeforeExecution = "Cancelled before execution"
)

// Config is the per-turn configuration.
type Config struct {
	Model        string
	WorkspaceID  string
	SystemPrompt string
	Memory       string
	CurrentFile  *client.CurrentFile
	// CurrentFileFunc, when set, is consulted before every request so a file
	// opened by a tool is visible to the next round trip.
	CurrentFileFunc func() *client.CurrentFile
	ContextFiles    []client.ContextFile
	// Folders overrides the workspace listing sent to the model. When empty the
	// listing is derived from the turn's tree.
	Folders       []tools.Entry
	MaxRoundTrips int
	// ToolDelay is a cosmetic pause before each tool call is marked running.
	ToolDelay time.Duration
}

// Dispatcher executes tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, req tools.Request) tools.Result
}

// Turn is one user submission together with the transcript leading up to it.
type Turn struct {
	Messages []models.ChatMessage
	Tree     tools.Tree
	Config   Config
}

type Outcome struct {
	State      State
	Messages   []models.ChatMessage
	Tree       tools.Tree
	RoundTrips int
	Err        error
}

type Loop struct {
	backend    client.Backend
	dispatcher Dispatcher
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

func NewLoop(backend client.Backend, dispatcher Dispatcher, observer Observer, logger *slog.Logger) *Loop {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		backend:    backend,
		dispatcher: dispatcher,
		observer:   observer,
		logger:     logger,
		now:        time.Now,
	}
}

type run struct {
	*Loop
	cfg   Config
	msgs  []models.ChatMessage
	tree  tools.Tree
	state State
}

func (r *run) setState(s State) {
	r.state = s
	r.observer.StateChanged(s)
}

func (r *run) append(m models.ChatMessage) int {
	if m.CreatedAt == "" {
		m.CreatedAt = r.now().UTC().Format(time.RFC3339Nano)
	}
	r.msgs = append(r.msgs, m)
	// setStatus edits the transcript's calls in place; observers keep a snapshot.
	m.ToolCalls = slices.Clone(m.ToolCalls)
	r.observer.MessageAppended(m)
	return len(r.msgs) - 1
}

func (r *run) outcome(rounds int, err error) Outcome {
	return Outcome{State: r.state, Messages: r.msgs, Tree: r.tree, RoundTrips: rounds, Err: err}
}

// Run drives the loop until the model answers without tool calls, the round
// trip cap is reached, ctx is cancelled, or the backend fails.
func (l *Loop) Run(ctx context.Context, turn Turn) Outcome {
	cfg := turn.Config
	if cfg.MaxRoundTrips <= 0 {
		cfg.MaxRoundTrips = DefaultMaxRoundTrips
	}
	r := &run{
		Loop:  l,
		cfg:   cfg,
		msgs:  append([]models.ChatMessage(nil), turn.Messages...),
		tree:  turn.Tree,
		state: StateIdle,
	}

	for round := 0; ; round++ {
		if ctx.Err() != nil {
			r.setState(StateCancelled)
			return r.outcome(round, ctx.Err())
		}
		if round >= cfg.MaxRoundTrips {
			r.append(models.AssistantMessage(
				fmt.Sprintf("Stopped after reaching the limit of %d model round trips.", cfg.MaxRoundTrips), nil))
			r.setState(StateIterationLimit)
			l.logger.Warn("agent iteration limit reached", "model", cfg.Model, "round_trips", round)
			return r.outcome(round, nil)
		}

		r.setState(StateAwaitingModel)
		resp, err := l.backend.Complete(ctx, r.request())
		if err != nil {
			if ctx.Err() != nil {
				r.setState(StateCancelled)
				return r.outcome(round+1, ctx.Err())
			}
			l.logger.Error("chat backend failed", "model", cfg.Model, "error", err)
			r.append(models.AssistantMessage("Error: "+err.Error(), nil))
			r.setState(StateErrored)
			return r.outcome(round+1, err)
		}
		if resp == nil {
			resp = &client.ChatResponse{Type: client.ResponseError, Content: "empty response from model"}
		}

		switch {
		case resp.Type == client.ResponseError:
			r.append(models.AssistantMessage("Error: "+resp.Content, nil))
			r.setState(StateErrored)
			return r.outcome(round+1, errors.New(resp.Content))

		case len(resp.ToolCalls) > 0:
			if cancelled := r.executeBatch(ctx, resp); cancelled {
				r.setState(StateCancelled)
				return r.outcome(round+1, ctx.Err())
			}

		default:
			r.append(models.AssistantMessage(resp.Content, nil))
			r.setState(StateFinalAnswer)
			return r.outcome(round+1, nil)
		}
	}
}

func (r *run) request() client.ChatRequest {
	folders := r.cfg.Folders
	if len(folders) == 0 && r.cfg.WorkspaceID == "" && len(r.tree) > 0 {
		folders = tools.Entries(r.tree, true)
	}
	current := r.cfg.CurrentFile
	if r.cfg.CurrentFileFunc != nil {
		current = r.cfg.CurrentFileFunc()
	}
	return client.ChatRequest{
		Messages:     r.msgs,
		Model:        r.cfg.Model,
		SystemPrompt: r.cfg.SystemPrompt,
		Context: client.WorkspaceContext{
			Folders:      folders,
			CurrentFile:  current,
			ContextFiles: r.cfg.ContextFiles,
			Memory:       r.cfg.Memory,
		},
	}
}

// executeBatch runs the calls of one response in order. It reports whether
// the batch was cut short by cancellation.
func (r *run) executeBatch(ctx context.Context, resp *client.ChatResponse) bool {
	calls := make([]models.ToolCall, len(resp.ToolCalls))
	for i, c := range resp.ToolCalls {
		c.Status = models.ToolStatusPending
		calls[i] = c
	}
	idx := r.append(models.AssistantMessage(resp.Content, calls))
	r.setState(StateExecutingTools)

	for i := range calls {
		if err := sleepCtx(ctx, r.cfg.ToolDelay); err != nil {
			r.cancelRemaining(idx, i)
			return true
		}

		r.setStatus(idx, i, models.ToolStatusRunning)
		call := r.msgs[idx].ToolCalls[i]
		res := r.dispatcher.Dispatch(context.WithoutCancel(ctx), tools.Request{
			Call:        call,
			WorkspaceID: r.cfg.WorkspaceID,
			Tree:        r.tree,
		})
		if res.TreeChanged {
			r.tree = res.Tree
			r.observer.TreeChanged(r.tree)
		}
		if res.RefreshFiles {
			r.observer.FilesRefresh()
		}

		status := models.ToolStatusCompleted
		if res.IsError {
			status = models.ToolStatusError
			r.logger.Warn("tool call failed", "tool", call.Name, "output", res.Output)
		}
		r.setStatus(idx, i, status)
		r.append(models.ToolResultMessage(call, res.Output, res.IsError))
	}
	return false
}

func (r *run) cancelRemaining(idx, from int) {
	for i := from; i < len(r.msgs[idx].ToolCalls); i++ {
		r.setStatus(idx, i, models.ToolStatusError)
		r.append(models.ToolResultMessage(r.msgs[idx].ToolCalls[i], CancelledBeforeExecution, true))
	}
}

// setStatus updates the call both in the transcript and for observers.
func (r *run) setStatus(idx, i int, status models.ToolStatus) {
	calls := r.msgs[idx].ToolCalls
	calls[i].Status = status
	r.observer.ToolStatus(calls[i])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
