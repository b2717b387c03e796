package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/yargevad/filepathx"

	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
	"inkpilot/internal/utils"
)

const gitDir = ".git"

// CommitInfo summarizes one workspace commit.
type CommitInfo struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// GitWorkspaceService keeps each workspace as a git repository under
// <root>/<workspaceID>. Every mutation is committed.
type GitWorkspaceService struct {
	root   string
	author string
	email  string
	logger *slog.Logger
	mu     sync.Mutex
}

var _ WorkspaceStore = (*GitWorkspaceService)(nil)

func NewGitWorkspaceService(root string, logger *slog.Logger) (*GitWorkspaceService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &GitWorkspaceService{
		root:   root,
		author: "inkpilot",
		email:  "agent@inkpilot.local",
		logger: logger,
	}, nil
}

func (s *GitWorkspaceService) dir(workspaceID string) (string, error) {
	if workspaceID == "" || strings.ContainsAny(workspaceID, `/\`) || workspaceID == "." || workspaceID == ".." {
		return "", fmt.Errorf("%w: workspace id %q", tools.ErrInvalidPath, workspaceID)
	}
	abs, ok := safeJoinUnderBase(s.root, workspaceID)
	if !ok {
		return "", fmt.Errorf("%w: workspace id %q", tools.ErrInvalidPath, workspaceID)
	}
	return abs, nil
}

// open returns the workspace repository, creating it on first use.
func (s *GitWorkspaceService) open(workspaceID string) (*git.Repository, string, error) {
	dir, err := s.dir(workspaceID)
	if err != nil {
		return nil, "", err
	}
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("create workspace %s: %w", workspaceID, err)
		}
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open workspace %s: %w", workspaceID, err)
	}
	return repo, dir, nil
}

// resolve maps a tool path to an absolute path inside dir.
func resolve(dir, p string) (abs, rel string, err error) {
	rel, err = tools.CleanPath(p)
	if err != nil {
		return "", "", err
	}
	if rel == gitDir || strings.HasPrefix(rel, gitDir+"/") {
		return "", "", fmt.Errorf("%w: %s", tools.ErrInvalidPath, p)
	}
	abs, ok := safeJoinUnderBase(dir, filepath.FromSlash(rel))
	if !ok {
		return "", "", fmt.Errorf("%w: %s escapes the workspace", tools.ErrInvalidPath, p)
	}
	return abs, rel, nil
}

func (s *GitWorkspaceService) Execute(ctx context.Context, workspaceID, toolName string, args map[string]any) (string, error) {
	a := tools.Args(args)
	repo, dir, err := s.open(workspaceID)
	if err != nil {
		return "", err
	}

	switch toolName {
	case tools.FSReadFile:
		abs, rel, err := resolve(dir, a.String("path"))
		if err != nil {
			return "", err
		}
		return readWorkspaceFile(abs, rel)

	case tools.FSWriteFile, tools.FSCreateFile, tools.FSUpdateFile:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.write(repo, dir, toolName, a.String("path"), a.String("content"))

	case tools.FSDeleteFile:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.delete(repo, dir, a.String("path"))

	case tools.FSListDirectory:
		abs, rel, err := resolve(dir, a.String("path"))
		if err != nil {
			return "", err
		}
		entries, err := listDir(abs, rel)
		if err != nil {
			return "", err
		}
		return tools.JSONOutput(entries)

	case tools.FSListWorkplace:
		tree, err := s.Tree(ctx, workspaceID)
		if err != nil {
			return "", err
		}
		return tools.JSONOutput(tools.Entries(tree, true))

	case tools.FSFindFile:
		files, err := globFiles(dir)
		if err != nil {
			return "", err
		}
		return tools.JSONOutput(tools.RankPaths(a.String("query"), files))

	case tools.FSSearchContent:
		files, err := globFiles(dir)
		if err != nil {
			return "", err
		}
		matches := []tools.ContentMatch{}
		for _, rel := range files {
			b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
			if err != nil {
				continue
			}
			matches = append(matches, tools.SearchLines(rel, string(b), a.String("query"))...)
		}
		return tools.JSONOutput(matches)
	}
	return "", fmt.Errorf("tool %q is not a workspace tool", toolName)
}

func readWorkspaceFile(abs, rel string) (string, error) {
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", tools.ErrFileNotFound, rel)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", tools.ErrIsFolder, rel)
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return string(b), nil
}

func (s *GitWorkspaceService) write(repo *git.Repository, dir, toolName, p, content string) (string, error) {
	abs, rel, err := resolve(dir, p)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", tools.ErrInvalidPath)
	}
	info, statErr := os.Stat(abs)
	exists := statErr == nil
	switch {
	case exists && info.IsDir():
		return "", fmt.Errorf("%w: %s", tools.ErrIsFolder, rel)
	case exists && toolName == tools.FSCreateFile:
		return "", fmt.Errorf("%w: %s", tools.ErrFileExists, rel)
	case !exists && toolName == tools.FSUpdateFile:
		return "", fmt.Errorf("%w: %s", tools.ErrFileNotFound, rel)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create folders for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}

	verb := map[string]string{tools.FSWriteFile: "Wrote", tools.FSCreateFile: "Created", tools.FSUpdateFile: "Updated"}[toolName]
	if err := s.commit(repo, fmt.Sprintf("%s %s", verb, rel)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s (%d bytes)", verb, p, len(content)), nil
}

func (s *GitWorkspaceService) delete(repo *git.Repository, dir, p string) (string, error) {
	abs, rel, err := resolve(dir, p)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", fmt.Errorf("%w: cannot delete the workspace root", tools.ErrInvalidPath)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", tools.ErrFileNotFound, p)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		children, err := os.ReadDir(abs)
		if err != nil {
			return "", err
		}
		if len(children) > 0 {
			return "", fmt.Errorf("%w: %s", tools.ErrFolderNotEmpty, rel)
		}
	}
	if err := s.remove(repo, abs, rel, info.IsDir()); err != nil {
		return "", fmt.Errorf("delete %s: %w", rel, err)
	}
	if err := s.commit(repo, "Deleted "+rel); err != nil {
		return "", err
	}
	return "Deleted " + p, nil
}

// remove deletes a tracked file through the index so the deletion is staged.
// Folders and untracked files are removed from disk only.
func (s *GitWorkspaceService) remove(repo *git.Repository, abs, rel string, dir bool) error {
	if dir {
		return os.Remove(abs)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if _, err := wt.Remove(rel); err != nil {
		if errors.Is(err, index.ErrEntryNotFound) {
			return os.Remove(abs)
		}
		return err
	}
	return nil
}

// commit stages every change in the worktree. Nothing is committed when git
// sees no change, as with empty folders.
func (s *GitWorkspaceService) commit(repo *git.Repository, msg string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: s.author, Email: s.email, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("workspace commit", "hash", hash.String(), "message", msg)
	return nil
}

func listDir(abs, rel string) ([]tools.Entry, error) {
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", tools.ErrFileNotFound, rel)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", tools.ErrNotAFolder, rel)
	}
	items, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	out := make([]tools.Entry, 0, len(items))
	for _, it := range items {
		if it.Name() == gitDir {
			continue
		}
		e := tools.Entry{Name: it.Name(), Path: joinRel(rel, it.Name()), Type: models.FileTypeFile}
		if it.IsDir() {
			e.Type = models.FileTypeFolder
		}
		out = append(out, e)
	}
	return out, nil
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// globFiles lists every regular file under dir as slash-separated relative
// paths, skipping the repository metadata.
func globFiles(dir string) ([]string, error) {
	paths, err := walkWorkspace(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, p := range paths {
		if !p.dir {
			files = append(files, p.rel)
		}
	}
	return files, nil
}

type workspacePath struct {
	rel string
	dir bool
}

func walkWorkspace(dir string) ([]workspacePath, error) {
	matches, err := filepathx.Glob(filepath.Join(dir, "**", "*"))
	if err != nil {
		return nil, fmt.Errorf("glob workspace: %w", err)
	}
	seen := map[string]bool{}
	var out []workspacePath
	for _, m := range matches {
		r, err := filepath.Rel(dir, m)
		if err != nil || r == "." {
			continue
		}
		rel := filepath.ToSlash(r)
		if rel == gitDir || strings.HasPrefix(rel, gitDir+"/") || seen[rel] {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		seen[rel] = true
		out = append(out, workspacePath{rel: rel, dir: info.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rel < out[j].rel })
	return out, nil
}

func (s *GitWorkspaceService) Tree(_ context.Context, workspaceID string) (tools.Tree, error) {
	_, dir, err := s.open(workspaceID)
	if err != nil {
		return nil, err
	}
	paths, err := walkWorkspace(dir)
	if err != nil {
		return nil, err
	}
	rows := make([]models.WorkspaceFile, 0, len(paths))
	for i, p := range paths {
		row := models.WorkspaceFile{
			ID:          uint(i + 1),
			WorkspaceID: workspaceID,
			Path:        p.rel,
			Name:        filepath.Base(p.rel),
			Type:        models.FileTypeFile,
		}
		if p.dir {
			row.Type = models.FileTypeFolder
		} else if b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p.rel))); err == nil {
			row.Content = string(b)
		}
		rows = append(rows, row)
	}
	return BuildTree(rows), nil
}

func (s *GitWorkspaceService) Workspaces(context.Context) ([]string, error) {
	items, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	ids := []string{}
	for _, it := range items {
		if it.IsDir() && utils.HasGitRepo(filepath.Join(s.root, it.Name())) {
			ids = append(ids, it.Name())
		}
	}
	return ids, nil
}

// History returns up to limit commits of a workspace, newest first.
func (s *GitWorkspaceService) History(workspaceID string, limit int) ([]CommitInfo, error) {
	repo, _, err := s.open(workspaceID)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		// no commits yet
		return []CommitInfo{}, nil
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	out := []CommitInfo{}
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(out) >= limit {
			return errStopIteration
		}
		out = append(out, CommitInfo{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(c.Message),
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return out, nil
}

var errStopIteration = errors.New("stop iteration")

// safeJoinUnderBase resolves p under base and reports false when the result,
// after following symlinks, would leave base.
func safeJoinUnderBase(base, p string) (string, bool) {
	if base == "" {
		base = "."
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", false
	}
	evalBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		evalBase = absBase
	}

	candidate, err := filepath.Abs(filepath.Join(evalBase, p))
	if err != nil {
		return "", false
	}
	evalCandidate, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		// not created yet
		evalCandidate = candidate
	}
	rel, err := filepath.Rel(evalBase, evalCandidate)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return candidate, true
}
