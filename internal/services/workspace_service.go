package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
	"inkpilot/internal/repositories"
)

// WorkspaceStore is a tools.Persistence that can also list its files.
type WorkspaceStore interface {
	tools.Persistence
	Tree(ctx context.Context, workspaceID string) (tools.Tree, error)
	Workspaces(ctx context.Context) ([]string, error)
}

// WorkspaceService keeps workspace files as WorkspaceFile rows. Tool calls run
// against a tree built from the rows, and mutations are written back.
type WorkspaceService struct {
	repo   repositories.WorkspaceFileRepository
	logger *slog.Logger
	// serializes read-modify-write cycles per process
	mu sync.Mutex
}

var _ WorkspaceStore = (*WorkspaceService)(nil)

func NewWorkspaceService(repo repositories.WorkspaceFileRepository, logger *slog.Logger) *WorkspaceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkspaceService{repo: repo, logger: logger}
}

func (s *WorkspaceService) Tree(_ context.Context, workspaceID string) (tools.Tree, error) {
	rows, err := s.repo.List(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace %s: %w", workspaceID, err)
	}
	return BuildTree(rows), nil
}

func (s *WorkspaceService) Workspaces(context.Context) ([]string, error) {
	return s.repo.Workspaces()
}

func (s *WorkspaceService) Execute(ctx context.Context, workspaceID, toolName string, args map[string]any) (string, error) {
	spec, ok := tools.Lookup(toolName)
	if !ok || spec.Class != tools.ClassWorkspace {
		return "", fmt.Errorf("tool %q is not a workspace tool", toolName)
	}
	if spec.Mutates {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	tree, err := s.Tree(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	res, err := tools.ExecuteLocal(tree, toolName, tools.Args(args))
	if err != nil {
		return "", err
	}
	if !res.Changed {
		return res.Output, nil
	}

	p, err := tools.CleanPath(tools.Args(args).String("path"))
	if err != nil {
		return "", err
	}
	if toolName == tools.FSDeleteFile {
		err = s.repo.Delete(workspaceID, p)
	} else {
		err = s.repo.Save(rowsFor(workspaceID, res.Tree, p)...)
	}
	if err != nil {
		return "", fmt.Errorf("persist %s: %w", p, err)
	}
	s.logger.Info("workspace file changed", "workspace", workspaceID, "tool", toolName, "path", p)
	return res.Output, nil
}

// rowsFor returns the rows for p and each of its folders, taken from tree.
func rowsFor(workspaceID string, tree tools.Tree, p string) []models.WorkspaceFile {
	var rows []models.WorkspaceFile
	segs := strings.Split(p, "/")
	for i := range segs {
		n := tree.Find(strings.Join(segs[:i+1], "/"))
		if n == nil {
			continue
		}
		row := models.WorkspaceFile{
			WorkspaceID: workspaceID,
			Path:        n.Path,
			Name:        n.Name,
			Type:        n.Type,
		}
		if n.Content != nil {
			row.Content = *n.Content
		}
		rows = append(rows, row)
	}
	return rows
}

// BuildTree turns flat rows into a nested tree. Parents that have no row of
// their own are synthesized as folders.
func BuildTree(rows []models.WorkspaceFile) tools.Tree {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	nodes := map[string]*models.FileNode{}
	var root tools.Tree
	var ensure func(p string) *models.FileNode
	ensure = func(p string) *models.FileNode {
		if n, ok := nodes[p]; ok {
			return n
		}
		n := &models.FileNode{
			ID:   "folder:" + p,
			Name: path.Base(p),
			Path: p,
			Type: models.FileTypeFolder,
		}
		nodes[p] = n
		attach(&root, ensure, n)
		return n
	}

	for _, r := range rows {
		n, ok := nodes[r.Path]
		if !ok {
			n = &models.FileNode{Path: r.Path}
			nodes[r.Path] = n
			attach(&root, ensure, n)
		}
		n.ID = fmt.Sprint(r.ID)
		n.Name = r.Name
		n.Type = r.Type
		if r.Type != models.FileTypeFolder {
			content := r.Content
			n.Content = &content
		}
	}
	return root
}

func attach(root *tools.Tree, ensure func(string) *models.FileNode, n *models.FileNode) {
	dir := path.Dir(n.Path)
	if dir == "." || dir == "/" {
		*root = append(*root, n)
		return
	}
	parent := ensure(dir)
	parent.Children = append(parent.Children, n)
}
