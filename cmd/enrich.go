package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/internal/pipeline"
)

var (
	enrichBatch          int
	enrichFast           bool
	enrichVerbose        bool
	enrichSearchFallback bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich stored movies that are missing OMDb metadata",
	Long:  "Looks up the most-rated movies that still lack director, plot, box office or an IMDb ID and fills in what OMDb returns. Stops early when OMDb rate-limits the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("batch") {
			cfg.Enrich.Batch = enrichBatch
		}
		if cmd.Flags().Changed("search-fallback") {
			cfg.Enrich.SearchFallback = enrichSearchFallback
		}

		if err := requireDatabase(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		looker, omdbCache, err := initLookup(enrichFast, cfg.Enrich.SearchFallback)
		if err != nil {
			return err
		}

		enricher := pipeline.NewEnricher(st, looker, omdbCache, pipeline.EnrichOptions{
			Batch:   cfg.Enrich.Batch,
			Fast:    enrichFast,
			Verbose: enrichVerbose,
		})

		zap.L().Info("starting enrichment",
			zap.Int("batch", cfg.Enrich.Batch),
			zap.Bool("fast", enrichFast),
			zap.Bool("search_fallback", cfg.Enrich.SearchFallback),
		)

		summary, err := pipeline.Track(ctx, st, model.RunModeEnrich, enricher.Run)
		if err != nil {
			return err
		}

		printSummary(cmd, "Enrich", summary)
		return nil
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichBatch, "batch", 500, "maximum number of movies to enrich")
	enrichCmd.Flags().BoolVar(&enrichFast, "fast", false, "skip OMDb lookups entirely")
	enrichCmd.Flags().BoolVar(&enrichVerbose, "verbose", false, "log every movie instead of periodic progress")
	enrichCmd.Flags().BoolVar(&enrichSearchFallback, "search-fallback", false, "search OMDb when a title lookup fails")
	rootCmd.AddCommand(enrichCmd)
}
