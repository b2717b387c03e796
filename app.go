package main

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm/logger"

	"inkpilot/internal/config"
	"inkpilot/internal/database"
	"inkpilot/internal/services"
)

// App holds what every command needs: configuration, the database and the
// service container.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	svc     *services.Services
	dbClose func() error
}

// startup loads configuration and wires the services.
func startup(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := cfg.NewLogger()
	slog.SetDefault(log)

	level := logger.Warn
	if lvl, _ := cfg.Level(); lvl <= slog.LevelDebug {
		level = logger.Info
	}
	db, err := database.Init(database.Config{
		Path:     cfg.DatabasePath,
		LogLevel: level,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{cfg: cfg, logger: log}
	if sqlDB, err := db.DB(); err != nil {
		log.Error("failed to get sql.DB", "error", err)
	} else {
		a.dbClose = sqlDB.Close
	}

	a.svc, err = services.NewServices(db, cfg, nil, log)
	if err != nil {
		a.shutdown()
		return nil, err
	}
	log.Info("inkpilot started",
		"database", cfg.DatabasePath,
		"workspace_backend", cfg.WorkspaceBackend,
		"default_model", cfg.DefaultModel)
	return a, nil
}

// shutdown releases resources. It is safe to call twice.
func (a *App) shutdown() {
	if a.dbClose != nil {
		if err := a.dbClose(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		} else {
			a.logger.Debug("database closed")
		}
		a.dbClose = nil
	}
}
