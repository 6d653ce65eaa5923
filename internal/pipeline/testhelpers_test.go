package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/movie-etl/internal/cache"
	"github.com/sells-group/movie-etl/internal/enrich"
	"github.com/sells-group/movie-etl/internal/store"
	"github.com/sells-group/movie-etl/pkg/omdb"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "movies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestCache(t *testing.T) *cache.File[omdb.Movie] {
	t.Helper()
	c, err := cache.Open[omdb.Movie](filepath.Join(t.TempDir(), "omdb_cache.json"))
	require.NoError(t, err)
	return c
}

// writeDataset writes n movies, each rated by two users, plus ratings for
// one movie id that is not in the catalog.
func writeDataset(t *testing.T, n int) (string, string) {
	t.Helper()
	dir := t.TempDir()

	var movies strings.Builder
	movies.WriteString("movieId,title,genres\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&movies, "%d,Movie %d (%d),Drama|Comedy\n", i, i, 1990+i%30)
	}

	var ratings strings.Builder
	ratings.WriteString("userId,movieId,rating,timestamp\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&ratings, "1,%d,4.0,964982703\n", i)
		fmt.Fprintf(&ratings, "2,%d,3.5,964982931\n", i)
	}
	fmt.Fprintf(&ratings, "1,%d,5.0,964983000\n", n+1000)

	moviesPath := filepath.Join(dir, "movies.csv")
	ratingsPath := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(moviesPath, []byte(movies.String()), 0o644))
	require.NoError(t, os.WriteFile(ratingsPath, []byte(ratings.String()), 0o644))
	return moviesPath, ratingsPath
}

// omdbServer serves title lookups from handle and counts requests.
type omdbServer struct {
	*httptest.Server
	hits atomic.Int64
}

func newOMDbServer(t *testing.T, handle func(q map[string]string) any) *omdbServer {
	t.Helper()
	s := &omdbServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		q := map[string]string{}
		for k, v := range r.URL.Query() {
			q[k] = v[0]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(q))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *omdbServer) client(t *testing.T, c enrich.Cache, opts enrich.Options) *enrich.Client {
	t.Helper()
	api := omdb.NewClient("test-key", omdb.WithBaseURL(s.URL), omdb.WithRequestDelay(0))
	opts.HasAPIKey = true
	return enrich.NewClient(api, c, opts)
}

func countRows(t *testing.T, st store.Store, query string) string {
	t.Helper()
	res, err := st.Query(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	return res.Rows[0][0]
}
