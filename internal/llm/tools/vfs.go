package tools

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"inkpilot/internal/models"
)

// Tree is an in-memory workspace. It is never modified in place: every
// mutating operation works on a clone and returns it.
type Tree []*models.FileNode

// Clone deep-copies the tree.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for i, n := range t {
		out[i] = cloneNode(n)
	}
	return out
}

func cloneNode(n *models.FileNode) *models.FileNode {
	if n == nil {
		return nil
	}
	c := *n
	if n.Content != nil {
		content := *n.Content
		c.Content = &content
	}
	if n.Children != nil {
		c.Children = make([]*models.FileNode, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = cloneNode(child)
		}
	}
	return &c
}

// Find returns the node at p, or nil.
func (t Tree) Find(p string) *models.FileNode {
	clean, err := CleanPath(p)
	if err != nil || clean == "" {
		return nil
	}
	nodes := []*models.FileNode(t)
	var found *models.FileNode
	for _, seg := range strings.Split(clean, "/") {
		found = nil
		for _, n := range nodes {
			if n.Name == seg {
				found = n
				break
			}
		}
		if found == nil {
			return nil
		}
		nodes = found.Children
	}
	return found
}

// Files returns every file in depth-first order.
func (t Tree) Files() []*models.FileNode {
	var out []*models.FileNode
	var walk func(nodes []*models.FileNode)
	walk = func(nodes []*models.FileNode) {
		for _, n := range nodes {
			if n.IsFolder() {
				walk(n.Children)
				continue
			}
			out = append(out, n)
		}
	}
	walk(t)
	return out
}

// Entries converts nodes to listing entries, recursing when deep is set.
func Entries(nodes []*models.FileNode, deep bool) []Entry {
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		e := Entry{Name: n.Name, Path: n.Path, Type: n.Type}
		if deep && n.IsFolder() {
			e.Children = Entries(n.Children, true)
		}
		out = append(out, e)
	}
	return out
}

// ReadFile returns the content of the file at p.
func (t Tree) ReadFile(p string) (string, error) {
	n := t.Find(p)
	if n == nil {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}
	if n.IsFolder() {
		return "", fmt.Errorf("%w: %s", ErrIsFolder, p)
	}
	if n.Content == nil {
		return "", nil
	}
	return *n.Content, nil
}

// WriteFile returns a new tree where p holds content. Missing folders are
// created. mustExist and mustNotExist narrow the operation to update or create.
func (t Tree) WriteFile(p, content string, mustExist, mustNotExist bool) (Tree, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	if clean == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	existing := t.Find(clean)
	switch {
	case existing != nil && existing.IsFolder():
		return nil, fmt.Errorf("%w: %s", ErrIsFolder, clean)
	case existing != nil && mustNotExist:
		return nil, fmt.Errorf("%w: %s", ErrFileExists, clean)
	case existing == nil && mustExist:
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, clean)
	}

	next := t.Clone()
	if n := next.Find(clean); n != nil {
		n.Content = &content
		return next, nil
	}

	segs := strings.Split(clean, "/")
	siblings := (*[]*models.FileNode)(&next)
	for i, seg := range segs[:len(segs)-1] {
		var folder *models.FileNode
		for _, n := range *siblings {
			if n.Name == seg {
				folder = n
				break
			}
		}
		if folder == nil {
			folder = &models.FileNode{
				ID:   uuid.NewString(),
				Name: seg,
				Path: strings.Join(segs[:i+1], "/"),
				Type: models.FileTypeFolder,
			}
			*siblings = append(*siblings, folder)
		} else if !folder.IsFolder() {
			return nil, fmt.Errorf("%w: %s", ErrNotAFolder, folder.Path)
		}
		siblings = &folder.Children
	}
	*siblings = append(*siblings, &models.FileNode{
		ID:      uuid.NewString(),
		Name:    segs[len(segs)-1],
		Path:    clean,
		Type:    models.FileTypeFile,
		Content: &content,
	})
	return next, nil
}

// Delete returns a new tree without the file or empty folder at p.
func (t Tree) Delete(p string) (Tree, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	target := t.Find(clean)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}
	if target.IsFolder() && len(target.Children) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotEmpty, clean)
	}

	next := t.Clone()
	siblings := (*[]*models.FileNode)(&next)
	if i := strings.LastIndex(clean, "/"); i >= 0 {
		siblings = &next.Find(clean[:i]).Children
	}
	kept := make([]*models.FileNode, 0, len(*siblings))
	for _, n := range *siblings {
		if n.Path != clean {
			kept = append(kept, n)
		}
	}
	*siblings = kept
	return next, nil
}

// LocalResult is the outcome of a workspace tool run against a Tree.
type LocalResult struct {
	Output  string
	Tree    Tree
	Changed bool
}

// ExecuteLocal runs a workspace tool against the in-memory tree. The input
// tree is never modified.
func ExecuteLocal(t Tree, name string, args Args) (LocalResult, error) {
	switch name {
	case FSReadFile:
		content, err := t.ReadFile(args.String("path"))
		return LocalResult{Output: content}, err

	case FSWriteFile, FSCreateFile, FSUpdateFile:
		p := args.String("path")
		content := args.String("content")
		next, err := t.WriteFile(p, content, name == FSUpdateFile, name == FSCreateFile)
		if err != nil {
			return LocalResult{}, err
		}
		verb := map[string]string{FSWriteFile: "Wrote", FSCreateFile: "Created", FSUpdateFile: "Updated"}[name]
		return LocalResult{
			Output:  fmt.Sprintf("%s %s (%d bytes)", verb, p, len(content)),
			Tree:    next,
			Changed: true,
		}, nil

	case FSDeleteFile:
		p := args.String("path")
		next, err := t.Delete(p)
		if err != nil {
			return LocalResult{}, err
		}
		return LocalResult{Output: "Deleted " + p, Tree: next, Changed: true}, nil

	case FSListDirectory:
		p := args.String("path")
		nodes := []*models.FileNode(t)
		if clean, err := CleanPath(p); err != nil {
			return LocalResult{}, err
		} else if clean != "" {
			n := t.Find(clean)
			if n == nil {
				return LocalResult{}, fmt.Errorf("%w: %s", ErrFileNotFound, p)
			}
			if !n.IsFolder() {
				return LocalResult{}, fmt.Errorf("%w: %s", ErrNotAFolder, p)
			}
			nodes = n.Children
		}
		out, err := JSONOutput(Entries(nodes, false))
		return LocalResult{Output: out}, err

	case FSListWorkplace:
		out, err := JSONOutput(Entries(t, true))
		return LocalResult{Output: out}, err

	case FSFindFile:
		var paths []string
		for _, f := range t.Files() {
			paths = append(paths, f.Path)
		}
		out, err := JSONOutput(RankPaths(args.String("query"), paths))
		return LocalResult{Output: out}, err

	case FSSearchContent:
		query := args.String("query")
		matches := []ContentMatch{}
		for _, f := range t.Files() {
			if f.Content == nil {
				continue
			}
			matches = append(matches, SearchLines(f.Path, *f.Content, query)...)
		}
		out, err := JSONOutput(matches)
		return LocalResult{Output: out}, err
	}
	return LocalResult{}, fmt.Errorf("tool %q is not a workspace tool", name)
}
