// Package config loads inkpilot settings from a TOML file, the project .env
// file and INKPILOT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"inkpilot/internal/database"
	"inkpilot/internal/utils"
)

const (
	EnvPrefix     = "INKPILOT_"
	EnvConfigPath = EnvPrefix + "CONFIG"

	WorkspaceBackendDB  = "db"
	WorkspaceBackendGit = "git"
)

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	DatabasePath     string   `toml:"database_path"`
	ListenAddr       string   `toml:"listen_addr"`
	LogLevel         string   `toml:"log_level"`
	LogFormat        string   `toml:"log_format"`
	DefaultModel     string   `toml:"default_model"`
	MaxRoundTrips    int      `toml:"max_round_trips"`
	ToolDelay        Duration `toml:"tool_delay"`
	WorkspaceBackend string   `toml:"workspace_backend"`
	WorkspaceRoot    string   `toml:"workspace_root"`
	ChatEndpoint     string   `toml:"chat_endpoint"`
	SystemPrompt     string   `toml:"system_prompt,omitempty"`
}

func Default() *Config {
	return &Config{
		DatabasePath:     database.GetDefaultDBPath(),
		ListenAddr:       "127.0.0.1:8787",
		LogLevel:         "info",
		LogFormat:        "text",
		DefaultModel:     "gpt-4.1",
		MaxRoundTrips:    10,
		ToolDelay:        Duration{250 * time.Millisecond},
		WorkspaceBackend: WorkspaceBackendDB,
		WorkspaceRoot:    "workspaces",
	}
}

// Load builds the configuration. path may be empty, in which case
// INKPILOT_CONFIG is consulted, then inkpilot.toml at the project root. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	if err := utils.LoadEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = utils.DefaultConfigPath()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			slog.Warn("config file not found, using defaults", "path", path)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("DATABASE_PATH", &c.DatabasePath)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("DEFAULT_MODEL", &c.DefaultModel)
	str("WORKSPACE_BACKEND", &c.WorkspaceBackend)
	str("WORKSPACE_ROOT", &c.WorkspaceRoot)
	str("CHAT_ENDPOINT", &c.ChatEndpoint)
	str("SYSTEM_PROMPT", &c.SystemPrompt)

	if v := os.Getenv(EnvPrefix + "MAX_ROUND_TRIPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_ROUND_TRIPS: %w", EnvPrefix, err)
		}
		c.MaxRoundTrips = n
	}
	if v := os.Getenv(EnvPrefix + "TOOL_DELAY"); v != "" {
		if err := c.ToolDelay.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%sTOOL_DELAY: %w", EnvPrefix, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxRoundTrips <= 0 {
		errs = append(errs, fmt.Errorf("max_round_trips must be positive, got %d", c.MaxRoundTrips))
	}
	if c.ToolDelay.Duration < 0 {
		errs = append(errs, fmt.Errorf("tool_delay must not be negative"))
	}
	switch c.WorkspaceBackend {
	case WorkspaceBackendDB, WorkspaceBackendGit:
	default:
		errs = append(errs, fmt.Errorf("workspace_backend must be %q or %q, got %q",
			WorkspaceBackendDB, WorkspaceBackendGit, c.WorkspaceBackend))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the process logger described by LogLevel and LogFormat.
func (c *Config) NewLogger() *slog.Logger {
	lvl, _ := c.Level()
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
