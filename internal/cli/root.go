// Package cli implements corpora-admin, the operator command line for user
// accounts, schema migrations and the search index.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"corpora/api/internal/config"
	"corpora/api/internal/store"

	"github.com/spf13/cobra"
)

var (
	databaseURL   string
	migrationsDir string
	timeout       time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "corpora-admin",
	Short: "Operator tasks for the Corpora annotation API",
	Long: `corpora-admin manages what the HTTP API deliberately does not expose:
user accounts, database migrations and rebuilding the search index.

Settings come from the same environment variables (and optional .env file)
as the API server. Flags override them.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "migrations", "", "migrations directory (default: $CORPORA_MIGRATIONS_DIR)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout of the command")
}

// loadConfig applies the persistent flags on top of the environment.
func loadConfig() config.Config {
	cfg := config.Load()
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if migrationsDir != "" {
		cfg.MigrationsDir = migrationsDir
	}
	return cfg
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}
