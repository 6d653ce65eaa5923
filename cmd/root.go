package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "movie-etl",
	Short: "MovieLens ingest and OMDb enrichment",
	Long:  "Loads the MovieLens catalog and ratings into SQLite or Postgres, enriches movies with OMDb metadata, and runs ad-hoc SQL reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
