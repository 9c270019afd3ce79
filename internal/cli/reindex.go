package cli

import (
	"errors"
	"fmt"
	"strings"

	"corpora/api/internal/search"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch indexes from PostgreSQL",
	Long: `Push every article and metaphor case from PostgreSQL into Meilisearch.

Run it after restoring a database backup or when Meilisearch lost its data.
Search keeps working on PostgreSQL full-text search in the meantime.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return errors.New("MEILI_URL is not set")
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	defer meili.Close()

	count, err := search.NewService(meili, search.NewPgFTS(db)).ReindexAllFromPG(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records\n", count)
	return nil
}
