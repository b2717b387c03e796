package services

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"inkpilot/internal/config"
	"inkpilot/internal/llm/client"
	"inkpilot/internal/repositories"
)

// Services aggregates the domain services behind the HTTP and MCP surfaces.
type Services struct {
	Models     ModelConfigService
	Keys       *KeyringService
	Sessions   SessionService
	Workspaces WorkspaceStore
	Agent      *AgentService
}

// NewServices constructs the service container using repositories backed by
// db. keys may be nil, in which case the OS keyring is opened.
func NewServices(db *gorm.DB, cfg *config.Config, keys *KeyringService, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if keys == nil {
		keys = NewKeyringService(logger)
	}

	modelConfigs := NewModelConfigService(repositories.NewModelSettingRepository(db))
	if err := modelConfigs.Startup(); err != nil {
		return nil, err
	}
	sessions := NewSessionService(repositories.NewAgentSessionRepository(db))

	var store WorkspaceStore
	switch cfg.WorkspaceBackend {
	case config.WorkspaceBackendGit:
		git, err := NewGitWorkspaceService(cfg.WorkspaceRoot, logger)
		if err != nil {
			return nil, err
		}
		store = git
	case config.WorkspaceBackendDB, "":
		store = NewWorkspaceService(repositories.NewWorkspaceFileRepository(db), logger)
	default:
		return nil, fmt.Errorf("unknown workspace backend %q", cfg.WorkspaceBackend)
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = client.DefaultSystemPrompt()
	}
	agent := NewAgentService(AgentServiceConfig{
		DefaultModel:  cfg.DefaultModel,
		SystemPrompt:  prompt,
		MaxRoundTrips: cfg.MaxRoundTrips,
		ToolDelay:     cfg.ToolDelay.Duration,
	}, store, sessions, modelConfigs, NewBackendFactory(keys, cfg.ChatEndpoint, logger), logger)

	return &Services{
		Models:     modelConfigs,
		Keys:       keys,
		Sessions:   sessions,
		Workspaces: store,
		Agent:      agent,
	}, nil
}
