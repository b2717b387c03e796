package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkpilot/internal/agent"
	"inkpilot/internal/changes"
	"inkpilot/internal/editor"
	"inkpilot/internal/events"
	"inkpilot/internal/llm/client"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
	"inkpilot/internal/review"
)

var (
	ErrTurnInProgress  = errors.New("a turn is already running for this session")
	ErrSessionNotFound = errors.New("session not found")
)

type AgentServiceConfig struct {
	DefaultModel  string
	SystemPrompt  string
	MaxRoundTrips int
	ToolDelay     time.Duration
}

// SessionOptions configures a new session.
type SessionOptions struct {
	WorkspaceID string `json:"workspaceId,omitempty"`
	ModelKey    string `json:"modelKey,omitempty"`
	Memory      string `json:"memory,omitempty"`
	// Tree seeds the in-memory workspace used when WorkspaceID is empty.
	Tree tools.Tree `json:"tree,omitempty"`
}

// TurnOptions carries per-submission context.
type TurnOptions struct {
	ContextFiles []client.ContextFile `json:"contextFiles,omitempty"`
}

type SessionInfo struct {
	Key          string               `json:"key"`
	WorkspaceID  string               `json:"workspaceId,omitempty"`
	ModelKey     string               `json:"modelKey"`
	DocumentPath string               `json:"documentPath,omitempty"`
	State        agent.State          `json:"state"`
	Running      bool                 `json:"running"`
	Pending      int                  `json:"pending"`
	Messages     []models.ChatMessage `json:"messages"`
}

type sessionRuntime struct {
	key         string
	workspaceID string
	editor      *editor.Editor

	mu       sync.Mutex
	modelKey string
	memory   string
	messages []models.ChatMessage
	tree     tools.Tree
	state    agent.State
	running  bool
	cancel   context.CancelFunc
}

// AgentService owns one editor and one conversation per session and runs
// agent turns against them.
type AgentService struct {
	cfg          AgentServiceConfig
	store        WorkspaceStore
	sessions     SessionService
	modelConfigs ModelConfigService
	backends     BackendFactory
	logger       *slog.Logger

	sessionMu sync.RWMutex
	runtimes  map[string]*sessionRuntime
}

// NewAgentService wires the service. store and sessions may be nil, in which
// case sessions only use in-memory trees and are not persisted.
func NewAgentService(cfg AgentServiceConfig, store WorkspaceStore, sessions SessionService, modelConfigs ModelConfigService, backends BackendFactory, logger *slog.Logger) *AgentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentService{
		cfg:          cfg,
		store:        store,
		sessions:     sessions,
		modelConfigs: modelConfigs,
		backends:     backends,
		logger:       logger,
		runtimes:     make(map[string]*sessionRuntime),
	}
}

func (s *AgentService) CreateSession(ctx context.Context, opts SessionOptions) (SessionInfo, error) {
	if opts.WorkspaceID != "" && s.store == nil {
		return SessionInfo{}, fmt.Errorf("workspace %s requested but no workspace store is configured", opts.WorkspaceID)
	}
	modelKey, err := s.resolveModelKey(opts.ModelKey)
	if err != nil {
		return SessionInfo{}, err
	}
	rt := &sessionRuntime{
		key:         uuid.NewString(),
		workspaceID: opts.WorkspaceID,
		editor:      editor.New(s.logger),
		modelKey:    modelKey,
		memory:      opts.Memory,
		tree:        opts.Tree.Clone(),
		state:       agent.StateIdle,
	}
	s.setRuntime(rt)
	if err := s.persist(rt); err != nil {
		s.logger.Warn("persist new session", "session", rt.key, "error", err)
	}
	s.logger.Info("session created", "session", rt.key, "workspace", rt.workspaceID, "model", modelKey)
	return s.info(rt), nil
}

func (s *AgentService) resolveModelKey(key string) (string, error) {
	if s.modelConfigs == nil {
		if key == "" {
			key = s.cfg.DefaultModel
		}
		return key, nil
	}
	var (
		m   *models.LLMModel
		err error
	)
	if key == "" {
		m, err = s.modelConfigs.Default(s.cfg.DefaultModel)
	} else {
		m, err = s.modelConfigs.Resolve(key)
	}
	if err != nil {
		return "", err
	}
	return m.Key, nil
}

func (s *AgentService) setRuntime(rt *sessionRuntime) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.runtimes[rt.key] = rt
}

// runtime returns the live session, restoring a saved transcript on demand.
func (s *AgentService) runtime(key string) (*sessionRuntime, error) {
	s.sessionMu.RLock()
	rt, ok := s.runtimes[key]
	s.sessionMu.RUnlock()
	if ok {
		return rt, nil
	}
	if s.sessions == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	rec, err := s.sessions.Load(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}

	rt = &sessionRuntime{
		key:         rec.Key,
		workspaceID: rec.WorkspaceID,
		editor:      editor.New(s.logger),
		modelKey:    rec.ModelKey,
		messages:    rec.Messages,
		state:       agent.StateIdle,
	}
	if rec.DocumentPath != "" && rec.WorkspaceID != "" && s.store != nil {
		content, err := s.store.Execute(context.Background(), rec.WorkspaceID, tools.FSReadFile, map[string]any{"path": rec.DocumentPath})
		if err == nil {
			err = rt.editor.Load(rec.DocumentPath, content)
		}
		if err != nil {
			s.logger.Warn("reopen session document", "session", key, "path", rec.DocumentPath, "error", err)
		}
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if existing, ok := s.runtimes[key]; ok {
		return existing, nil
	}
	s.runtimes[key] = rt
	s.logger.Info("session restored", "session", key, "messages", len(rec.Messages))
	return rt, nil
}

func (s *AgentService) info(rt *sessionRuntime) SessionInfo {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return SessionInfo{
		Key:          rt.key,
		WorkspaceID:  rt.workspaceID,
		ModelKey:     rt.modelKey,
		DocumentPath: rt.editor.Path(),
		State:        rt.state,
		Running:      rt.running,
		Pending:      rt.editor.Engine().Store().PendingCount(),
		Messages:     append([]models.ChatMessage{}, rt.messages...),
	}
}

func (s *AgentService) persist(rt *sessionRuntime) error {
	if s.sessions == nil {
		return nil
	}
	rt.mu.Lock()
	rec := SessionRecord{
		Key:          rt.key,
		WorkspaceID:  rt.workspaceID,
		DocumentPath: rt.editor.Path(),
		ModelKey:     rt.modelKey,
		Messages:     append([]models.ChatMessage(nil), rt.messages...),
	}
	rt.mu.Unlock()
	if m, err := s.model(rec.ModelKey); err == nil {
		rec.Provider = m.ProviderID
	}
	return s.sessions.Save(rec)
}

func (s *AgentService) Session(key string) (SessionInfo, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(rt), nil
}

func (s *AgentService) Sessions() []SessionInfo {
	s.sessionMu.RLock()
	rts := make([]*sessionRuntime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		rts = append(rts, rt)
	}
	s.sessionMu.RUnlock()

	out := make([]SessionInfo, 0, len(rts))
	for _, rt := range rts {
		out = append(out, s.info(rt))
	}
	return out
}

// Editor exposes the session's editor, for callers such as the MCP server.
func (s *AgentService) Editor(key string) (*editor.Editor, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return nil, err
	}
	return rt.editor, nil
}

// Dispatcher returns a tool dispatcher bound to the session's editor and its
// workspace store.
func (s *AgentService) Dispatcher(key string) (*tools.Dispatcher, tools.Request, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return nil, tools.Request{}, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return s.dispatcher(rt), tools.Request{WorkspaceID: rt.workspaceID, Tree: rt.tree}, nil
}

func (s *AgentService) dispatcher(rt *sessionRuntime) *tools.Dispatcher {
	if s.store == nil {
		return tools.NewDispatcher(rt.editor, nil)
	}
	return tools.NewDispatcher(rt.editor, s.store)
}

// SetTree replaces the in-memory tree of a session, for example after a tool
// call made outside an agent turn.
func (s *AgentService) SetTree(key string, tree tools.Tree) error {
	rt, err := s.runtime(key)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.tree = tree
	rt.mu.Unlock()
	return nil
}

// Submit appends a user message and runs a turn to completion.
func (s *AgentService) Submit(ctx context.Context, key, text string, opts TurnOptions) (agent.Outcome, error) {
	run, err := s.begin(ctx, key, text, opts)
	if err != nil {
		return agent.Outcome{}, err
	}
	return run(), nil
}

// Start is Submit without waiting. The turn outlives ctx and is stopped only
// through Stop.
func (s *AgentService) Start(ctx context.Context, key, text string, opts TurnOptions) error {
	run, err := s.begin(context.WithoutCancel(ctx), key, text, opts)
	if err != nil {
		return err
	}
	go run()
	return nil
}

func (s *AgentService) begin(ctx context.Context, key, text string, opts TurnOptions) (func() agent.Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message is empty")
	}
	rt, err := s.runtime(key)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	if rt.running {
		rt.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	model, err := s.model(rt.modelKey)
	if err != nil {
		rt.mu.Unlock()
		return nil, err
	}
	if s.backends == nil {
		rt.mu.Unlock()
		return nil, fmt.Errorf("no chat backend is configured")
	}
	backend, err := s.backends(ctx, model)
	if err != nil {
		rt.mu.Unlock()
		return nil, fmt.Errorf("create backend: %w", err)
	}

	ctx = events.WithSession(ctx, rt.key)
	turnCtx, cancel := context.WithCancel(ctx)
	rt.running = true
	rt.cancel = cancel
	user := models.UserMessage(text)
	user.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	rt.messages = append(rt.messages, user)
	turn := agent.Turn{
		Messages: append([]models.ChatMessage(nil), rt.messages...),
		Tree:     rt.tree,
		Config: agent.Config{
			Model:         model.APIName,
			WorkspaceID:   rt.workspaceID,
			SystemPrompt:  s.cfg.SystemPrompt,
			Memory:        rt.memory,
			ContextFiles:  opts.ContextFiles,
			MaxRoundTrips: s.cfg.MaxRoundTrips,
			ToolDelay:     s.cfg.ToolDelay,
		},
	}
	dispatcher := s.dispatcher(rt)
	rt.mu.Unlock()

	events.Emit(ctx, events.AgentEventMessage, events.NewInfo("user message").WithData(user))
	turn.Config.CurrentFileFunc = func() *client.CurrentFile { return currentFile(rt.editor) }
	if rt.workspaceID != "" && s.store != nil {
		if tree, err := s.store.Tree(ctx, rt.workspaceID); err == nil {
			turn.Config.Folders = tools.Entries(tree, true)
		} else {
			s.logger.Warn("list workspace for context", "workspace", rt.workspaceID, "error", err)
		}
	}

	loop := agent.NewLoop(backend, dispatcher, s.observer(ctx, rt), s.logger.With("session", rt.key))
	return func() agent.Outcome {
		defer cancel()
		out := loop.Run(turnCtx, turn)

		rt.mu.Lock()
		rt.messages = out.Messages
		rt.tree = out.Tree
		rt.state = out.State
		rt.running = false
		rt.cancel = nil
		rt.mu.Unlock()

		if err := s.persist(rt); err != nil {
			s.logger.Error("persist session", "session", rt.key, "error", err)
		}
		evt := events.NewSuccess("turn finished").WithMeta("state", string(out.State)).WithData(out.State)
		if out.State == agent.StateErrored {
			evt = events.NewError("turn failed").WithMeta("state", string(out.State)).WithData(out.State)
		}
		events.Emit(ctx, events.AgentEventDone, evt)
		s.logger.Info("turn finished", "session", rt.key, "state", out.State, "round_trips", out.RoundTrips)
		return out
	}, nil
}

func (s *AgentService) model(key string) (*models.LLMModel, error) {
	if s.modelConfigs == nil {
		m := &models.LLMModel{Key: key, APIName: key, Enabled: true}
		if provider, api, ok := models.SplitModelKey(key); ok {
			m.ProviderID, m.APIName = provider, api
		}
		return m, nil
	}
	return s.modelConfigs.GetModel(key)
}

func currentFile(ed *editor.Editor) *client.CurrentFile {
	p := ed.Path()
	if p == "" {
		return nil
	}
	return &client.CurrentFile{Path: p, Content: ed.Document().Text()}
}

func (s *AgentService) observer(ctx context.Context, rt *sessionRuntime) agent.Observer {
	return agent.ObserverFuncs{
		OnState: func(st agent.State) {
			rt.mu.Lock()
			rt.state = st
			rt.mu.Unlock()
			events.Emit(ctx, events.AgentEventState, events.NewInfo(string(st)).WithData(st))
		},
		OnMessage: func(m models.ChatMessage) {
			events.Emit(ctx, events.AgentEventMessage, events.NewInfo(string(m.Role)+" message").WithData(m))
		},
		OnTool: func(c models.ToolCall) {
			evt := events.NewInfo(c.Name + " " + string(c.Status))
			if c.Status == models.ToolStatusError {
				evt = events.NewWarn(c.Name + " failed")
			}
			events.Emit(ctx, events.AgentEventTool, evt.WithMeta("tool", c.Name).WithData(c))
		},
		OnTree: func(t tools.Tree) {
			rt.mu.Lock()
			rt.tree = t
			rt.mu.Unlock()
			events.Emit(ctx, events.WorkspaceEventTree, events.NewInfo("workspace tree changed").WithData(tools.Entries(t, true)))
		},
		OnRefresh: func() {
			events.Emit(ctx, events.WorkspaceRefresh, events.NewInfo("workspace files changed").WithMeta("workspaceId", rt.workspaceID))
		},
	}
}

// Stop cancels the running turn, if any.
func (s *AgentService) Stop(key string) error {
	rt, err := s.runtime(key)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.cancel != nil {
		rt.cancel()
	}
	return nil
}

// Close stops and forgets a live session. Its saved transcript is kept.
func (s *AgentService) Close(key string) error {
	if err := s.Stop(key); err != nil {
		return err
	}
	s.sessionMu.Lock()
	delete(s.runtimes, key)
	s.sessionMu.Unlock()
	return nil
}

// Delete closes the session and removes its saved transcript.
func (s *AgentService) Delete(key string) error {
	if err := s.Close(key); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Delete(key)
}

// OpenDocument loads a file into the session editor. Empty content is read
// from the session workspace.
func (s *AgentService) OpenDocument(ctx context.Context, key, path, content string) (SessionInfo, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return SessionInfo{}, err
	}
	if content == "" {
		rt.mu.Lock()
		req := tools.Request{
			Call:        models.ToolCall{ID: "open", Name: tools.OpenFileInEditor, Args: map[string]any{"path": path}},
			WorkspaceID: rt.workspaceID,
			Tree:        rt.tree,
		}
		d := s.dispatcher(rt)
		rt.mu.Unlock()
		if res := d.Dispatch(ctx, req); res.IsError {
			return SessionInfo{}, errors.New(res.Output)
		}
	} else if err := rt.editor.Load(path, content); err != nil {
		return SessionInfo{}, err
	}
	if err := s.persist(rt); err != nil {
		s.logger.Warn("persist session", "session", key, "error", err)
	}
	return s.info(rt), nil
}

func (s *AgentService) DocumentHTML(key string) (string, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return "", err
	}
	return rt.editor.Document().HTML(), nil
}

// SaveDocument writes the open document, with pending changes shown as their
// suggestions, back to the session workspace.
func (s *AgentService) SaveDocument(ctx context.Context, key string) (string, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return "", err
	}
	p := rt.editor.Path()
	if p == "" {
		return "", fmt.Errorf("no document is open")
	}
	rt.mu.Lock()
	req := tools.Request{
		Call: models.ToolCall{ID: "save", Name: tools.FSWriteFile, Args: map[string]any{
			"path":    p,
			"content": rt.editor.Document().HTML(),
		}},
		WorkspaceID: rt.workspaceID,
		Tree:        rt.tree,
	}
	d := s.dispatcher(rt)
	rt.mu.Unlock()

	res := d.Dispatch(ctx, req)
	if res.IsError {
		return "", errors.New(res.Output)
	}
	if res.TreeChanged {
		rt.mu.Lock()
		rt.tree = res.Tree
		rt.mu.Unlock()
	}
	return res.Output, nil
}

func (s *AgentService) Select(key string, from, to int) (editor.Selection, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return editor.Selection{}, err
	}
	if err := rt.editor.Select(from, to); err != nil {
		return editor.Selection{}, err
	}
	return rt.editor.Selection(), nil
}

func (s *AgentService) Selection(key string) (editor.Selection, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return editor.Selection{}, err
	}
	return rt.editor.Selection(), nil
}

func (s *AgentService) Comments(key string) ([]editor.Comment, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return nil, err
	}
	return rt.editor.Comments(), nil
}

func (s *AgentService) Changes(key string) ([]changes.Change, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return nil, err
	}
	return rt.editor.Engine().Store().List(), nil
}

func (s *AgentService) Accept(ctx context.Context, key, changeID string) (review.Resolution, error) {
	return s.resolve(ctx, key, func(e *review.Engine) (review.Resolution, error) { return e.Accept(changeID) })
}

func (s *AgentService) Reject(ctx context.Context, key, changeID string) (review.Resolution, error) {
	return s.resolve(ctx, key, func(e *review.Engine) (review.Resolution, error) { return e.Reject(changeID) })
}

func (s *AgentService) resolve(ctx context.Context, key string, fn func(*review.Engine) (review.Resolution, error)) (review.Resolution, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return review.Resolution{}, err
	}
	res, err := fn(rt.editor.Engine())
	if err != nil {
		return review.Resolution{}, err
	}
	events.Emit(events.WithSession(ctx, key), events.ReviewEventChanges,
		events.NewSuccess("change "+string(res.Change.Status)).WithMeta("changeId", res.Change.ID).WithData(res))
	return res, nil
}

func (s *AgentService) AcceptAll(ctx context.Context, key string) ([]review.Resolution, error) {
	return s.resolveAll(ctx, key, (*review.Engine).AcceptAll)
}

func (s *AgentService) RejectAll(ctx context.Context, key string) ([]review.Resolution, error) {
	return s.resolveAll(ctx, key, (*review.Engine).RejectAll)
}

func (s *AgentService) resolveAll(ctx context.Context, key string, fn func(*review.Engine) ([]review.Resolution, error)) ([]review.Resolution, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return nil, err
	}
	res, err := fn(rt.editor.Engine())
	events.Emit(events.WithSession(ctx, key), events.ReviewEventChanges,
		events.NewSuccess(fmt.Sprintf("%d changes resolved", len(res))).WithData(res))
	return res, err
}

func (s *AgentService) Hunks(key, changeID string) ([]review.Segment, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return nil, err
	}
	return rt.editor.Engine().Hunks(changeID)
}

func (s *AgentService) Undo(key string) (bool, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return false, err
	}
	return rt.editor.Engine().Undo()
}

func (s *AgentService) Redo(key string) (bool, error) {
	rt, err := s.runtime(key)
	if err != nil {
		return false, err
	}
	return rt.editor.Engine().Redo()
}
