// Package pipeline runs the full-load and enrichment-only ETL passes.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/enrich"
	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/internal/store"
	"github.com/sells-group/movie-etl/pkg/omdb"
)

// Looker resolves a title to an OMDb document. *enrich.Client implements it.
type Looker interface {
	Lookup(ctx context.Context, title string, year *int) omdb.Movie
	RateLimited() bool
	Stats() enrich.Stats
}

// Flusher persists pending cache entries.
type Flusher interface {
	Flush() error
}

// Track records a pipeline run in the run log around fn. The summary is
// saved whether fn succeeds or fails.
func Track(ctx context.Context, st store.Store, mode model.RunMode, fn func(ctx context.Context) (*model.RunSummary, error)) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("mode", string(mode)))

	run, err := st.StartRun(ctx, mode)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	log = log.With(zap.String("run_id", run.ID))

	start := time.Now()
	summary, runErr := fn(ctx)
	if summary != nil {
		summary.Elapsed = time.Since(start)
	}

	// The run may have been cancelled; the log entry is still written.
	finishCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		log.Error("pipeline: run failed", zap.Error(runErr))
		if err := st.FailRun(finishCtx, run.ID, summary, runErr); err != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(err))
		}
		return summary, runErr
	}

	if err := st.CompleteRun(finishCtx, run.ID, summary); err != nil {
		log.Warn("pipeline: failed to record run completion", zap.Error(err))
	}
	logSummary(log, summary)
	return summary, nil
}

func logSummary(log *zap.Logger, s *model.RunSummary) {
	if s == nil {
		return
	}
	log.Info("pipeline: run complete",
		zap.Int("processed", s.Processed),
		zap.Int("enriched", s.Enriched),
		zap.Int("skipped", s.Skipped),
		zap.Int("inserted", s.Inserted),
		zap.Int("external_id_dropped", s.ExternalIDDropped),
		zap.Int("ratings_read", s.RatingsRead),
		zap.Int64("ratings_inserted", s.RatingsInserted),
		zap.Int("ratings_dropped", s.RatingsDropped),
		zap.Int("cache_hits", s.CacheHits),
		zap.Int("network_calls", s.NetworkCalls),
		zap.Bool("rate_limited", s.RateLimited),
		zap.Bool("stopped_early", s.StoppedEarly),
		zap.Duration("elapsed", s.Elapsed),
	)
}

// recordLookups copies lookup counters into the summary.
func recordLookups(s *model.RunSummary, l Looker) {
	stats := l.Stats()
	s.CacheHits = stats.CacheHits
	s.NetworkCalls = stats.NetworkCalls
	s.RateLimited = l.RateLimited()
}
