package tools

import (
	"context"
	"errors"
	"fmt"

	"inkpilot/internal/events"
	"inkpilot/internal/models"
)

const defaultOccurrence = 1

// DocumentTools is the editor surface document tools act on. Implementations
// never touch workspace storage.
type DocumentTools interface {
	InsertText(ctx context.Context, text string) (string, error)
	ReplaceSelection(ctx context.Context, text string) (string, error)
	SuggestEdit(ctx context.Context, original, suggested, reason string, occurrence int) (string, error)
	AddComment(ctx context.Context, quote, comment string) (string, error)
	GetSelection(ctx context.Context) (string, error)
	SearchDocument(ctx context.Context, query string) (string, error)
	OpenFile(ctx context.Context, path, content string) (string, error)
}

// Persistence executes workspace tools against stored files.
type Persistence interface {
	Execute(ctx context.Context, workspaceID, toolName string, args map[string]any) (string, error)
}

type Request struct {
	Call models.ToolCall
	// WorkspaceID routes workspace tools to Persistence when set.
	WorkspaceID string
	// Tree is the in-memory workspace used when WorkspaceID is empty.
	Tree Tree
}

type Result struct {
	Output  string `json:"output"`
	IsError bool   `json:"isError"`
	Class   Class  `json:"class,omitempty"`
	// Tree is set when a local workspace tool produced a new tree.
	Tree         Tree `json:"-"`
	TreeChanged  bool `json:"treeChanged,omitempty"`
	RefreshFiles bool `json:"refreshFiles,omitempty"`
}

var errNoDocument = errors.New("no document tools are attached")

type Dispatcher struct {
	documents   DocumentTools
	persistence Persistence
}

func NewDispatcher(documents DocumentTools, persistence Persistence) *Dispatcher {
	return &Dispatcher{documents: documents, persistence: persistence}
}

// Dispatch executes one tool call. It never returns an error and never
// panics: every failure is reported through the Result text.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (res Result) {
	name := req.Call.Name
	defer func() {
		if r := recover(); r != nil {
			res = failure(ctx, name, fmt.Errorf("%v", r))
		}
	}()

	spec, ok := Lookup(name)
	if !ok {
		events.Emit(ctx, events.AgentEventTool, events.NewWarn(fmt.Sprintf("unknown tool %q", name)))
		return Result{Output: fmt.Sprintf("Tool %q is not implemented", name), IsError: true}
	}

	args := Args(req.Call.Args)
	if args == nil {
		parsed, err := ParseArgs(req.Call.Raw)
		if err != nil {
			return failure(ctx, name, fmt.Errorf("Format error: %w", err))
		}
		args = parsed
	}
	if err := args.Validate(spec); err != nil {
		return failure(ctx, name, fmt.Errorf("Format error: %w", err))
	}

	events.Emit(ctx, events.AgentEventTool, events.NewInfo(name+": starting").WithMeta("tool", name))

	var err error
	switch spec.Class {
	case ClassDocument:
		res, err = d.document(ctx, req, name, args)
	default:
		res, err = d.workspace(ctx, req, spec, args)
	}
	if err != nil {
		return failure(ctx, name, err)
	}
	res.Class = spec.Class
	events.Emit(ctx, events.AgentEventTool, events.NewSuccess(name+": done").WithMeta("tool", name))
	return res
}

func failure(ctx context.Context, name string, err error) Result {
	msg := fmt.Sprintf("Error executing %s: %v", name, err)
	events.Emit(ctx, events.AgentEventTool, events.NewError(msg).WithMeta("tool", name))
	return Result{Output: msg, IsError: true}
}

func (d *Dispatcher) workspace(ctx context.Context, req Request, spec Spec, args Args) (Result, error) {
	if req.WorkspaceID != "" && d.persistence != nil {
		out, err := d.persistence.Execute(ctx, req.WorkspaceID, spec.Name, args)
		if err != nil {
			return Result{}, err
		}
		return Result{Output: out, RefreshFiles: spec.Mutates}, nil
	}
	local, err := ExecuteLocal(req.Tree, spec.Name, args)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: local.Output, Tree: local.Tree, TreeChanged: local.Changed}, nil
}

func (d *Dispatcher) document(ctx context.Context, req Request, name string, args Args) (Result, error) {
	if d.documents == nil {
		return Result{}, errNoDocument
	}
	var (
		out string
		err error
	)
	switch name {
	case InsertText:
		out, err = d.documents.InsertText(ctx, args.String("text"))
	case ReplaceSelection:
		out, err = d.documents.ReplaceSelection(ctx, args.String("text"))
	case SuggestEdit:
		out, err = d.documents.SuggestEdit(ctx,
			args.String("original"),
			args.String("suggested"),
			args.String("reason"),
			args.Int("occurrence", defaultOccurrence),
		)
	case AddComment:
		out, err = d.documents.AddComment(ctx, args.String("quote"), args.String("comment"))
	case GetSelection:
		out, err = d.documents.GetSelection(ctx)
	case SearchDocument:
		out, err = d.documents.SearchDocument(ctx, args.String("query"))
	case OpenFileInEditor:
		p := args.String("path")
		var content string
		content, err = d.readFile(ctx, req, p)
		if err == nil {
			out, err = d.documents.OpenFile(ctx, p, content)
		}
	default:
		err = fmt.Errorf("document tool %q has no handler", name)
	}
	return Result{Output: out}, err
}

// readFile loads a file for the editor through the same route workspace
// tools use.
func (d *Dispatcher) readFile(ctx context.Context, req Request, p string) (string, error) {
	args := Args{"path": p}
	if req.WorkspaceID != "" && d.persistence != nil {
		return d.persistence.Execute(ctx, req.WorkspaceID, FSReadFile, args)
	}
	return req.Tree.ReadFile(p)
}
