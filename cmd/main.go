// Package main is the shift report service: an HTTP gateway plus command
// line tools for ingestion, questions and the employee directory.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/deadloked8999/exeltest/internal/appmanager"
	"github.com/deadloked8999/exeltest/internal/config"
	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/query"
)

var (
	configPath   string
	servicesPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "exeltest",
		Short:         "Shift report ingestion and questions over the report database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file")

	rootCmd.AddCommand(serveCmd(), ingestCmd(), classifyCmd(), askCmd(), employeesCmd(), verifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env files for local runs, then the YAML config.
func loadConfig() (*config.Config, error) {
	config.LoadEnv(".env", "../.env")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

// connect opens the pgx pool used for writes and the database/sql handle
// used for read-only question execution.
func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *sql.DB, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("database config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		pcfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	db, err := query.Open(cfg.Database.DSN())
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	return pool, db, nil
}

// withComponents runs fn over freshly wired components and closes them after.
func withComponents(ctx context.Context, fn func(c *appmanager.Components) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer db.Close()
	return fn(appmanager.Build(cfg, pool, db))
}

func serveCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the services listed in services.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withComponents(ctx, func(c *appmanager.Components) error {
				if verify {
					if err := c.VerifySchema(ctx); err != nil {
						return err
					}
				}
				manager := appmanager.NewAppManager(c)
				servicesCfg, err := appmanager.LoadServiceSequence(servicesPath)
				if err != nil {
					return fmt.Errorf("failed to load service sequence: %w", err)
				}
				manager.AutoRegisterServices(servicesCfg)
				if err := manager.StartAll(); err != nil {
					manager.StopAll()
					return fmt.Errorf("failed to start: %w", err)
				}

				<-ctx.Done()
				logger.Audit("Shutting down")
				if err := manager.StopAll(); err != nil {
					return fmt.Errorf("failed to stop: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&servicesPath, "services", "services.yaml", "service sequence file")
	cmd.Flags().BoolVar(&verify, "verify-schema", true, "refuse to start when the database differs from the catalog")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-schema",
		Short: "Compare the live database with the schema catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd.Context(), func(c *appmanager.Components) error {
				if err := c.VerifySchema(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema matches catalog")
				return nil
			})
		},
	}
}
