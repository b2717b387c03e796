package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProjectRootAndLoadEnv(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inkpilot.toml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("INKPILOT_UTILS_TEST=loaded\n"), 0o644))
	t.Chdir(nested)
	t.Setenv("INKPILOT_UTILS_TEST", "")
	require.NoError(t, os.Unsetenv("INKPILOT_UTILS_TEST"))

	got, err := FindProjectRoot()
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	assert.Equal(t, want, gotResolved)

	require.NoError(t, LoadEnv())
	assert.Equal(t, "loaded", os.Getenv("INKPILOT_UTILS_TEST"))
	assert.NotEmpty(t, DefaultConfigPath())
}

func TestHasGitRepo(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, DirectoryExists(dir))
	assert.False(t, DirectoryExists(filepath.Join(dir, "missing")))
	assert.False(t, HasGitRepo(dir))

	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	assert.True(t, HasGitRepo(dir))
}
