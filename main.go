package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inkpilot/internal/events"
	"inkpilot/internal/mcpserver"
	"inkpilot/internal/server"
	"inkpilot/internal/services"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "inkpilot",
		Short:        "AI writing assistant with reviewable edit suggestions",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to inkpilot.toml")
	root.AddCommand(newServeCmd(&configPath), newMCPCmd(&configPath), newModelsCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := startup(*configPath)
			if err != nil {
				return err
			}
			defer app.shutdown()
			if addr == "" {
				addr = app.cfg.ListenAddr
			}

			hub := events.NewHub(256)
			events.EnableHubEmitter(hub, app.logger)
			srv := server.New(app.svc, hub, app.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			app.logger.Info("shutting down")
			for _, s := range app.svc.Agent.Sessions() {
				if s.Running {
					_ = app.svc.Agent.Stop(s.Key)
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

func newMCPCmd(configPath *string) *cobra.Command {
	var (
		sessionKey string
		workspace  string
		model      string
		file       string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the editor and workspace tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := startup(*configPath)
			if err != nil {
				return err
			}
			defer app.shutdown()
			events.EnableLogEmitter(app.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			key, err := mcpSession(ctx, app.svc.Agent, sessionKey, workspace, model)
			if err != nil {
				return err
			}
			if file != "" {
				if _, err := app.svc.Agent.OpenDocument(ctx, key, file, ""); err != nil {
					return fmt.Errorf("open %s: %w", file, err)
				}
			}
			err = mcpserver.New(app.svc.Agent, key, version, app.logger).Serve(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session", "", "resume an existing session")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace id for a new session")
	cmd.Flags().StringVar(&model, "model", "", "model key for a new session")
	cmd.Flags().StringVar(&file, "file", "", "workspace file to open in the editor")
	return cmd
}

func mcpSession(ctx context.Context, agent *services.AgentService, key, workspace, model string) (string, error) {
	if key != "" {
		if _, err := agent.Session(key); err != nil {
			return "", fmt.Errorf("session %s: %w", key, err)
		}
		return key, nil
	}
	info, err := agent.CreateSession(ctx, services.SessionOptions{WorkspaceID: workspace, ModelKey: model})
	if err != nil {
		return "", err
	}
	return info.Key, nil
}

func newModelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := startup(*configPath)
			if err != nil {
				return err
			}
			defer app.shutdown()

			groups, err := app.svc.Models.ListModelGroups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range groups {
				fmt.Fprintf(out, "%s (%s)\n", g.ProviderName, g.ProviderID)
				for _, m := range g.Models {
					mark := " "
					if m.Enabled {
						mark = "*"
					}
					fmt.Fprintf(out, "  %s %-50s %s\n", mark, m.Key, m.Label())
				}
			}
			return nil
		},
	}
}
