package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/movie-etl/internal/enrich"
	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/pkg/omdb"
)

func TestLoader_LimitFiltersRatings(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, ratingsPath := writeDataset(t, 50)

	looker := enrich.NewClient(nil, c, enrich.Options{Fast: true})
	loader := NewLoader(st, looker, c, LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath, Limit: 10, FlushEvery: 3})

	sum, err := loader.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, sum.Processed)
	assert.Equal(t, 10, sum.Skipped)
	assert.Equal(t, 0, sum.Enriched)
	assert.Equal(t, 101, sum.RatingsRead)
	assert.Equal(t, int64(20), sum.RatingsInserted)
	assert.Equal(t, 81, sum.RatingsDropped)
	assert.Equal(t, 0, sum.NetworkCalls)

	assert.Equal(t, "10", countRows(t, st, "SELECT COUNT(*) FROM movies"))
	assert.Equal(t, "20", countRows(t, st, "SELECT COUNT(*) FROM ratings"))
	assert.Equal(t, "0", countRows(t, st, "SELECT COUNT(*) FROM ratings WHERE movie_id NOT IN (SELECT id FROM movies)"))
	assert.Equal(t, "2", countRows(t, st, "SELECT COUNT(*) FROM genres"))

	// Skipped lookups are cached too.
	assert.Equal(t, 10, c.Len())
	_, err = os.Stat(c.Path())
	require.NoError(t, err)
}

func TestLoader_Idempotent(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, ratingsPath := writeDataset(t, 5)

	run := func() *model.RunSummary {
		looker := enrich.NewClient(nil, c, enrich.Options{Fast: true})
		sum, err := NewLoader(st, looker, c, LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(context.Background())
		require.NoError(t, err)
		return sum
	}

	first := run()
	second := run()

	assert.Equal(t, int64(10), first.RatingsInserted)
	assert.Equal(t, int64(0), second.RatingsInserted)
	assert.Equal(t, 5, second.CacheHits)
	assert.Equal(t, "5", countRows(t, st, "SELECT COUNT(*) FROM movies"))
	assert.Equal(t, "10", countRows(t, st, "SELECT COUNT(*) FROM movie_genres"))
	assert.Equal(t, "10", countRows(t, st, "SELECT COUNT(*) FROM ratings"))
}

func TestLoader_RerunKeepsMetadataWhenOMDbForgets(t *testing.T) {
	st := newTestStore(t)
	moviesPath, ratingsPath := writeDataset(t, 2)

	good := newOMDbServer(t, func(q map[string]string) any {
		return omdb.Movie{
			Title:    q["t"],
			IMDbID:   "tt" + strings.ReplaceAll(q["t"], "Movie ", "000"),
			Director: "Director of " + q["t"],
			Response: "True",
		}
	})
	first := newTestCache(t)
	sum, err := NewLoader(st, good.client(t, first, enrich.Options{}), first,
		LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Enriched)

	// Fresh cache so the second pass asks OMDb again and gets nothing.
	missing := newOMDbServer(t, func(map[string]string) any {
		return omdb.Movie{Response: "False", Error: "Movie not found!"}
	})
	second := newTestCache(t)
	sum, err = NewLoader(st, missing.client(t, second, enrich.Options{}), second,
		LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, int64(2), missing.hits.Load())

	assert.Equal(t, "Director of Movie 1", countRows(t, st, "SELECT director FROM movies WHERE id = 1"))
	assert.Equal(t, "tt0001", countRows(t, st, "SELECT imdb_id FROM movies WHERE id = 1"))
	assert.Equal(t, "Director of Movie 2", countRows(t, st, "SELECT director FROM movies WHERE id = 2"))
	assert.Equal(t, "tt0002", countRows(t, st, "SELECT imdb_id FROM movies WHERE id = 2"))
	assert.Equal(t, "2", countRows(t, st, "SELECT COUNT(*) FROM movies"))
}

func TestLoader_EnrichesFromOMDb(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, ratingsPath := writeDataset(t, 3)

	srv := newOMDbServer(t, func(q map[string]string) any {
		if q["t"] == "Movie 2" {
			return omdb.Movie{Response: "False", Error: "Movie not found!"}
		}
		return omdb.Movie{
			Title:    q["t"],
			IMDbID:   "tt" + strings.ReplaceAll(q["t"], "Movie ", "000"),
			Director: "Director of " + q["t"],
			Runtime:  "101 min",
			Released: "05 May 1995",
			Response: "True",
		}
	})
	looker := srv.client(t, c, enrich.Options{})

	sum, err := NewLoader(st, looker, c, LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Enriched)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, sum.NetworkCalls)
	assert.Equal(t, int64(3), srv.hits.Load())

	assert.Equal(t, "Director of Movie 1", countRows(t, st, "SELECT director FROM movies WHERE id = 1"))
	assert.Equal(t, "1995-05-05", countRows(t, st, "SELECT released FROM movies WHERE id = 3"))
	assert.Equal(t, "101", countRows(t, st, "SELECT runtime_minutes FROM movies WHERE id = 3"))
	assert.Equal(t, "NULL", countRows(t, st, "SELECT imdb_id FROM movies WHERE id = 2"))

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Movie 2||1992"`)
	assert.Contains(t, string(data), `"Movie not found!"`)
}

func TestLoader_ExternalIDConflictDoesNotFail(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, ratingsPath := writeDataset(t, 2)

	srv := newOMDbServer(t, func(q map[string]string) any {
		return omdb.Movie{Title: "Same", IMDbID: "tt0000001", Plot: "Same plot", Response: "True"}
	})

	sum, err := NewLoader(st, srv.client(t, c, enrich.Options{}), c,
		LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ExternalIDDropped)
	assert.Equal(t, 2, sum.Enriched)
	assert.Equal(t, "1", countRows(t, st, "SELECT COUNT(*) FROM movies WHERE imdb_id = 'tt0000001'"))
	assert.Equal(t, "2", countRows(t, st, "SELECT COUNT(*) FROM movies WHERE plot = 'Same plot'"))
}

func TestLoader_RateLimitDegradesToSkips(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, ratingsPath := writeDataset(t, 4)

	srv := newOMDbServer(t, func(map[string]string) any {
		return omdb.Movie{Response: "False", Error: "Request limit reached!"}
	})
	looker := srv.client(t, c, enrich.Options{SearchFallback: true})

	sum, err := NewLoader(st, looker, c, LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Processed)
	assert.True(t, sum.RateLimited)
	assert.Equal(t, int64(1), srv.hits.Load())
	assert.Equal(t, int64(8), sum.RatingsInserted)
}

func TestLoader_MissingInputs(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, _ := writeDataset(t, 1)

	_, err := NewLoader(st, enrich.NewClient(nil, c, enrich.Options{Fast: true}), c, LoadOptions{
		MoviesCSV:  moviesPath,
		RatingsCSV: filepath.Join(t.TempDir(), "ratings.csv"),
	}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratings.csv")
	assert.Equal(t, "0", countRows(t, st, "SELECT COUNT(*) FROM movies"))
}

func TestLoader_Cancelled(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, ratingsPath := writeDataset(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(st, enrich.NewClient(nil, c, enrich.Options{Fast: true}), c,
		LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_CancelledLookupNotCached(t *testing.T) {
	st := newTestStore(t)
	c := newTestCache(t)
	moviesPath, ratingsPath := writeDataset(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	t.Cleanup(hanging.Close)

	api := omdb.NewClient("test-key", omdb.WithBaseURL(hanging.URL), omdb.WithRequestDelay(0))
	looker := enrich.NewClient(api, c, enrich.Options{HasAPIKey: true, SearchFallback: true})
	_, err := NewLoader(st, looker, c, LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "0", countRows(t, st, "SELECT COUNT(*) FROM movies"))

	if data, err := os.ReadFile(c.Path()); err == nil {
		assert.NotContains(t, string(data), "Movie 1")
		assert.NotContains(t, string(data), "test-key")
	}

	// The next run looks the title up again.
	srv := newOMDbServer(t, func(q map[string]string) any {
		return omdb.Movie{Title: q["t"], Director: "Someone", Response: "True"}
	})
	sum, err := NewLoader(st, srv.client(t, c, enrich.Options{}), c,
		LoadOptions{MoviesCSV: moviesPath, RatingsCSV: ratingsPath}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NetworkCalls)
	assert.Equal(t, 3, sum.Enriched)
}

func TestFilterRatings(t *testing.T) {
	ratings := []model.Rating{
		{UserID: 1, MovieID: 1}, {UserID: 1, MovieID: 2}, {UserID: 2, MovieID: 1}, {UserID: 2, MovieID: 3},
	}
	kept := FilterRatings(ratings, map[int64]struct{}{1: {}, 3: {}})
	assert.Equal(t, []model.Rating{{UserID: 1, MovieID: 1}, {UserID: 2, MovieID: 1}, {UserID: 2, MovieID: 3}}, kept)
	assert.Empty(t, FilterRatings(ratings, map[int64]struct{}{}))
}
