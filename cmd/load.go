package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/dataset"
	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/internal/pipeline"
)

var (
	loadLimit          int
	loadFast           bool
	loadVerbose        bool
	loadSearchFallback bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load MovieLens movies and ratings, enriching each movie from OMDb",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("limit") {
			cfg.Load.Limit = loadLimit
		}
		if cmd.Flags().Changed("search-fallback") {
			cfg.Load.SearchFallback = loadSearchFallback
		}

		if err := dataset.CheckInputs(cfg.Input.MoviesCSV, cfg.Input.RatingsCSV); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		looker, omdbCache, err := initLookup(loadFast, cfg.Load.SearchFallback)
		if err != nil {
			return err
		}

		loader := pipeline.NewLoader(st, looker, omdbCache, pipeline.LoadOptions{
			MoviesCSV:  cfg.Input.MoviesCSV,
			RatingsCSV: cfg.Input.RatingsCSV,
			Limit:      cfg.Load.Limit,
			FlushEvery: cfg.Cache.FlushEvery,
			Verbose:    loadVerbose,
		})

		zap.L().Info("starting load",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("limit", cfg.Load.Limit),
			zap.Bool("fast", loadFast),
			zap.Bool("search_fallback", cfg.Load.SearchFallback),
		)

		summary, err := pipeline.Track(ctx, st, model.RunModeLoad, loader.Run)
		if err != nil {
			return err
		}

		printSummary(cmd, "Load", summary)
		return nil
	},
}

func init() {
	loadCmd.Flags().IntVar(&loadLimit, "limit", 0, "load only the first N movies (0 = all)")
	loadCmd.Flags().BoolVar(&loadFast, "fast", false, "skip OMDb lookups entirely")
	loadCmd.Flags().BoolVar(&loadVerbose, "verbose", false, "log every movie instead of periodic progress")
	loadCmd.Flags().BoolVar(&loadSearchFallback, "search-fallback", true, "search OMDb when a title lookup fails")
	rootCmd.AddCommand(loadCmd)
}
