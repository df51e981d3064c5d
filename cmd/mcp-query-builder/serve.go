package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	mcpserver "github.com/txn2/mcp-query-builder/internal/server"
	"github.com/txn2/mcp-query-builder/pkg/config"
	"github.com/txn2/mcp-query-builder/pkg/database/migrate"
)

const defaultConfigPath = "config.yaml"

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// withServer loads the configuration, wires the server and hands it to fn,
// closing it afterwards.
func withServer(ctx context.Context, configPath string, fn func(*mcpserver.Server) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	s, err := mcpserver.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Warn("closing server", "error", err)
		}
	}()
	return fn(s)
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, MCP over streamable HTTP and health endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd.Context(), configPath, func(s *mcpserver.Server) error {
				return s.ServeHTTP(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	return cmd
}

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the query tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd.Context(), configPath, func(s *mcpserver.Server) error {
				return s.ServeMCP(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var (
		configPath string
		steps      int
	)

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Manage the metadata database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return fmt.Errorf("database.dsn is not configured")
			}

			db, err := mcpserver.OpenDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			switch {
			case steps != 0 && action != "version":
				if action == "down" {
					steps = -steps
				}
				return migrate.Steps(db, steps)
			case action == "down":
				return migrate.Down(db)
			case action == "version":
				version, dirty, err := migrate.Version(db)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			default:
				return migrate.Run(db)
			}
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().IntVar(&steps, "steps", 0, "Apply only this many migrations in the chosen direction")
	return cmd
}
