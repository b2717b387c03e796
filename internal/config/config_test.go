package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "inkpilot.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxRoundTrips)
	assert.Equal(t, WorkspaceBackendDB, cfg.WorkspaceBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.ToolDelay.Duration)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	p := writeConfig(t, `
listen_addr = ":9000"
max_round_trips = 4
tool_delay = "1s"
workspace_backend = "git"
workspace_root = "/tmp/ws"
log_format = "json"
`)
	t.Setenv("INKPILOT_MAX_ROUND_TRIPS", "6")
	t.Setenv("INKPILOT_CHAT_ENDPOINT", "http://localhost:1234/chat")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 6, cfg.MaxRoundTrips)
	assert.Equal(t, time.Second, cfg.ToolDelay.Duration)
	assert.Equal(t, WorkspaceBackendGit, cfg.WorkspaceBackend)
	assert.Equal(t, "http://localhost:1234/chat", cfg.ChatEndpoint)
	assert.NotNil(t, cfg.NewLogger())
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	p := writeConfig(t, `default_model = "claude-sonnet-4"`)
	t.Setenv(EnvConfigPath, p)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4", cfg.DefaultModel)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, `max_round_trips = "ten"`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `workspace_backend = "s3"`))
	assert.ErrorContains(t, err, "workspace_backend")

	t.Setenv("INKPILOT_TOOL_DELAY", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "TOOL_DELAY")
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.MaxRoundTrips = 0
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_round_trips")
	assert.Contains(t, err.Error(), "log_level")
}
