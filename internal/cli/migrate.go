package cli

import (
	"fmt"

	"corpora/api/internal/store"

	"github.com/spf13/cobra"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every *.up.sql file of the migrations directory that is not yet
recorded in schema_migrations, each in its own transaction.

The API server runs the same step at startup; this command exists for
deployments that migrate before rolling out.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "list pending migrations without applying them")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cfg := loadConfig()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if migrateDryRun {
		pending, err := store.PendingMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(out, "schema is up to date")
		}
		for _, version := range pending {
			fmt.Fprintf(out, "pending %s\n", version)
		}
		return nil
	}

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	for _, version := range applied {
		fmt.Fprintf(out, "applied %s\n", version)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema is up to date")
	}
	return nil
}
