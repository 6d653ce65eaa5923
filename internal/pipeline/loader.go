package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/dataset"
	"github.com/sells-group/movie-etl/internal/enrich"
	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/internal/store"
)

// LoadOptions configures a full load.
type LoadOptions struct {
	MoviesCSV  string
	RatingsCSV string
	// Limit caps the number of movies read; 0 reads all.
	Limit int
	// FlushEvery flushes the cache after this many movies; 0 flushes only at the end.
	FlushEvery int
	Verbose    bool
}

// Loader ingests the catalog and ratings files, enriching each movie.
type Loader struct {
	store  store.Store
	looker Looker
	cache  Flusher
	opts   LoadOptions
	log    *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(st store.Store, looker Looker, cache Flusher, opts LoadOptions) *Loader {
	return &Loader{
		store:  st,
		looker: looker,
		cache:  cache,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "pipeline.load")),
	}
}

// Run executes the metadata phase and then the ratings phase.
func (l *Loader) Run(ctx context.Context) (*model.RunSummary, error) {
	if err := dataset.CheckInputs(l.opts.MoviesCSV, l.opts.RatingsCSV); err != nil {
		return nil, err
	}

	rows, err := dataset.ReadMovies(l.opts.MoviesCSV, l.opts.Limit)
	if err != nil {
		return nil, err
	}
	l.log.Info("pipeline: starting load", zap.Int("movies", len(rows)), zap.Int("limit", l.opts.Limit))

	summary := &model.RunSummary{}
	processed, err := l.loadMovies(ctx, rows, summary)
	recordLookups(summary, l.looker)
	if flushErr := l.cache.Flush(); flushErr != nil && err == nil {
		err = eris.Wrap(flushErr, "pipeline: flush cache")
	}
	if err != nil {
		return summary, err
	}
	l.log.Info("pipeline: movies processed", zap.Int("movies", summary.Processed))

	if err := l.loadRatings(ctx, processed, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (l *Loader) loadMovies(ctx context.Context, rows []dataset.MovieRow, summary *model.RunSummary) (map[int64]struct{}, error) {
	processed := make(map[int64]struct{}, len(rows))
	progress := NewProgress(l.log, len(rows), l.opts.Verbose)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		movie := row.Movie()
		doc := l.looker.Lookup(ctx, movie.Title, movie.Year)
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		meta := enrich.Normalize(doc)

		res, err := l.store.SaveMovie(ctx, movie, meta, model.SplitGenres(row.Genres))
		if err != nil {
			return processed, eris.Wrapf(err, "pipeline: save movie %d", movie.ID)
		}

		processed[movie.ID] = struct{}{}
		summary.Processed++
		summary.Inserted++
		if meta != nil {
			summary.Enriched++
		} else {
			summary.Skipped++
		}
		if res.ExternalIDDropped {
			summary.ExternalIDDropped++
			l.log.Warn("pipeline: imdb id already used by another movie, saved without it",
				zap.Int64("movie_id", movie.ID), zap.String("title", movie.Title))
		}

		if n := l.opts.FlushEvery; n > 0 && (i+1)%n == 0 {
			if err := l.cache.Flush(); err != nil {
				return processed, eris.Wrap(err, "pipeline: flush cache")
			}
		}
		progress.Tick(i+1, movie.Title)
	}
	return processed, nil
}

// loadRatings inserts ratings whose movie is stored or was processed in this
// run and counts the rest as dropped.
func (l *Loader) loadRatings(ctx context.Context, processed map[int64]struct{}, summary *model.RunSummary) error {
	ratings, err := dataset.ReadRatings(l.opts.RatingsCSV)
	if err != nil {
		return err
	}
	summary.RatingsRead = len(ratings)

	valid, err := l.store.MovieIDs(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: load movie ids")
	}
	for id := range processed {
		valid[id] = struct{}{}
	}

	kept := FilterRatings(ratings, valid)
	summary.RatingsDropped = len(ratings) - len(kept)
	if summary.RatingsDropped > 0 {
		l.log.Info("pipeline: dropping ratings for movies not in the database",
			zap.Int("dropped", summary.RatingsDropped))
	}

	n, err := l.store.InsertRatings(ctx, kept)
	if err != nil {
		return eris.Wrap(err, "pipeline: insert ratings")
	}
	summary.RatingsInserted = n
	l.log.Info("pipeline: ratings inserted", zap.Int64("inserted", n), zap.Int("read", len(ratings)))
	return nil
}

// FilterRatings keeps the ratings whose movie id is in valid, in input order.
func FilterRatings(ratings []model.Rating, valid map[int64]struct{}) []model.Rating {
	kept := make([]model.Rating, 0, len(ratings))
	for _, r := range ratings {
		if _, ok := valid[r.MovieID]; ok {
			kept = append(kept, r)
		}
	}
	return kept
}
