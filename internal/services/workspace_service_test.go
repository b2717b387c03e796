package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkpilot/internal/llm/tools"
	"inkpilot/internal/models"
	"inkpilot/internal/repositories"
)

func TestWorkspaceService_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewWorkspaceFileRepository(openDB(t))
	svc := NewWorkspaceService(repo, nil)

	out, err := svc.Execute(ctx, "ws", tools.FSCreateFile, map[string]any{"path": "docs/guide/intro.md", "content": "# Intro"})
	require.NoError(t, err)
	assert.Equal(t, "Created docs/guide/intro.md (7 bytes)", out)

	rows, err := repo.List("ws")
	require.NoError(t, err)
	var paths []string
	for _, r := range rows {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{"docs", "docs/guide", "docs/guide/intro.md"}, paths)

	content, err := svc.Execute(ctx, "ws", tools.FSReadFile, map[string]any{"path": "docs/guide/intro.md"})
	require.NoError(t, err)
	assert.Equal(t, "# Intro", content)

	_, err = svc.Execute(ctx, "ws", tools.FSCreateFile, map[string]any{"path": "docs/guide/intro.md", "content": "x"})
	assert.ErrorIs(t, err, tools.ErrFileExists)

	_, err = svc.Execute(ctx, "ws", tools.FSUpdateFile, map[string]any{"path": "docs/guide/intro.md", "content": "# Intro v2"})
	require.NoError(t, err)
	row, err := repo.Get("ws", "docs/guide/intro.md")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "# Intro v2", row.Content)

	_, err = svc.Execute(ctx, "ws", tools.FSDeleteFile, map[string]any{"path": "docs/guide"})
	assert.ErrorIs(t, err, tools.ErrFolderNotEmpty)

	out, err = svc.Execute(ctx, "ws", tools.FSDeleteFile, map[string]any{"path": "docs/guide/intro.md"})
	require.NoError(t, err)
	assert.Equal(t, "Deleted docs/guide/intro.md", out)
	_, err = svc.Execute(ctx, "ws", tools.FSReadFile, map[string]any{"path": "docs/guide/intro.md"})
	assert.ErrorIs(t, err, tools.ErrFileNotFound)
}

func TestWorkspaceService_IsolatesWorkspaces(t *testing.T) {
	ctx := context.Background()
	svc := NewWorkspaceService(repositories.NewWorkspaceFileRepository(openDB(t)), nil)

	_, err := svc.Execute(ctx, "a", tools.FSWriteFile, map[string]any{"path": "x.md", "content": "alpha"})
	require.NoError(t, err)
	_, err = svc.Execute(ctx, "b", tools.FSWriteFile, map[string]any{"path": "y.md", "content": "beta"})
	require.NoError(t, err)

	_, err = svc.Execute(ctx, "b", tools.FSReadFile, map[string]any{"path": "x.md"})
	assert.ErrorIs(t, err, tools.ErrFileNotFound)

	ids, err := svc.Workspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	found, err := svc.Execute(ctx, "a", tools.FSSearchContent, map[string]any{"query": "alph"})
	require.NoError(t, err)
	assert.Contains(t, found, "x.md")
}

func TestWorkspaceService_RejectsDocumentTools(t *testing.T) {
	svc := NewWorkspaceService(repositories.NewWorkspaceFileRepository(openDB(t)), nil)
	_, err := svc.Execute(context.Background(), "ws", tools.InsertText, map[string]any{"text": "x"})
	assert.Error(t, err)
}

func TestBuildTree_SynthesizesFolders(t *testing.T) {
	tree := BuildTree([]models.WorkspaceFile{
		{ID: 2, Path: "a/b/c.md", Name: "c.md", Type: models.FileTypeFile, Content: "c"},
		{ID: 1, Path: "top.md", Name: "top.md", Type: models.FileTypeFile, Content: "t"},
	})

	require.Len(t, tree, 2)
	a := tree.Find("a")
	require.NotNil(t, a)
	assert.True(t, a.IsFolder())
	assert.Equal(t, "folder:a", a.ID)

	c := tree.Find("a/b/c.md")
	require.NotNil(t, c)
	require.NotNil(t, c.Content)
	assert.Equal(t, "c", *c.Content)
	assert.Equal(t, "2", c.ID)
}
