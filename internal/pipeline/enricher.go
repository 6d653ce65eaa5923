package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/enrich"
	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/internal/store"
)

// EnrichOptions configures an enrichment-only pass.
type EnrichOptions struct {
	Batch   int
	Fast    bool
	Verbose bool
}

// Enricher fills in metadata for stored movies that lack it.
type Enricher struct {
	store  store.Store
	looker Looker
	cache  Flusher
	opts   EnrichOptions
	log    *zap.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(st store.Store, looker Looker, cache Flusher, opts EnrichOptions) *Enricher {
	return &Enricher{
		store:  st,
		looker: looker,
		cache:  cache,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "pipeline.enrich")),
	}
}

// Run enriches up to Batch of the most-rated incomplete movies. It stops
// early once OMDb rate-limits the run, unless in fast mode.
func (e *Enricher) Run(ctx context.Context) (*model.RunSummary, error) {
	candidates, err := e.store.EnrichmentCandidates(ctx, e.opts.Batch)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch candidates")
	}

	summary := &model.RunSummary{}
	if len(candidates) == 0 {
		e.log.Info("pipeline: no candidate movies found (all rated movies already have director and imdb id)")
		return summary, nil
	}
	e.log.Info("pipeline: starting enrichment",
		zap.Int("candidates", len(candidates)), zap.Int("batch", e.opts.Batch), zap.Bool("fast", e.opts.Fast))

	err = e.enrich(ctx, candidates, summary)
	recordLookups(summary, e.looker)
	if flushErr := e.cache.Flush(); flushErr != nil && err == nil {
		err = eris.Wrap(flushErr, "pipeline: flush cache")
	}
	return summary, err
}

func (e *Enricher) enrich(ctx context.Context, candidates []model.Candidate, summary *model.RunSummary) error {
	progress := NewProgress(e.log, len(candidates), e.opts.Verbose)

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.looker.RateLimited() && !e.opts.Fast {
			e.log.Warn("pipeline: omdb rate-limited, stopping", zap.Int("remaining", len(candidates)-i))
			summary.StoppedEarly = true
			return nil
		}

		summary.Processed++
		doc := e.looker.Lookup(ctx, c.Title, c.Year)
		if err := ctx.Err(); err != nil {
			return err
		}
		meta := enrich.Normalize(doc)
		if meta == nil {
			summary.Skipped++
			e.log.Debug("pipeline: skipped, no omdb data",
				zap.Int64("movie_id", c.ID), zap.String("title", c.Title), zap.String("error", doc.Error))
		} else {
			res, err := e.store.EnrichMovie(ctx, c.ID, *meta)
			if err != nil {
				return eris.Wrapf(err, "pipeline: enrich movie %d", c.ID)
			}
			if res.Updated {
				summary.Enriched++
				e.log.Debug("pipeline: enriched", zap.Int64("movie_id", c.ID), zap.String("title", c.Title))
			} else {
				summary.Skipped++
			}
			if res.ExternalIDDropped {
				summary.ExternalIDDropped++
				e.log.Warn("pipeline: imdb id already used by another movie, updated without it",
					zap.Int64("movie_id", c.ID), zap.String("title", c.Title))
			}
		}

		if err := e.cache.Flush(); err != nil {
			return eris.Wrap(err, "pipeline: flush cache")
		}
		progress.Tick(i+1, c.Title)
	}
	return nil
}
