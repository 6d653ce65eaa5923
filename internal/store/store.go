// Package store persists movies, genres, ratings and the run log.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/movie-etl/internal/config"
	"github.com/sells-group/movie-etl/internal/db"
	"github.com/sells-group/movie-etl/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Mode  model.RunMode `json:"mode,omitempty"`
	Limit int           `json:"limit,omitempty"`
}

// SaveResult reports how a movie write was applied.
type SaveResult struct {
	// ExternalIDDropped is set when the IMDb ID belonged to another movie
	// and the row was written without it.
	ExternalIDDropped bool
}

// EnrichResult reports how an enrichment update was applied.
type EnrichResult struct {
	Updated           bool
	ExternalIDDropped bool
}

// QueryResult is the tabular output of an ad-hoc statement.
type QueryResult struct {
	Columns      []string
	Rows         [][]string
	RowsAffected int64
}

// Store defines the persistence interface for the ETL pipelines.
type Store interface {
	// Movies
	MovieIDs(ctx context.Context) (map[int64]struct{}, error)
	SaveMovie(ctx context.Context, movie model.Movie, meta *model.Metadata, genres []string) (SaveResult, error)
	EnrichMovie(ctx context.Context, id int64, meta model.Metadata) (EnrichResult, error)
	EnrichmentCandidates(ctx context.Context, limit int) ([]model.Candidate, error)

	// Ratings
	InsertRatings(ctx context.Context, ratings []model.Rating) (int64, error)

	// Runs
	StartRun(ctx context.Context, mode model.RunMode) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, summary *model.RunSummary, runErr error) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Ad-hoc queries
	Query(ctx context.Context, stmt string) (*QueryResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	ApplySchemaFile(ctx context.Context, path string) (bool, error)
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}

var movieColumns = []string{
	"id", "title", "year",
	"imdb_id", "director", "plot", "box_office", "released", "runtime_minutes",
}

// movieUpsert overwrites title and year and fills metadata forward only.
var movieUpsert = db.UpsertConfig{
	Table:        "movies",
	Columns:      movieColumns,
	ConflictKeys: []string{"id"},
	CoalesceCols: movieColumns[3:],
}

var genreUpsert = db.UpsertConfig{
	Table:        "genres",
	Columns:      []string{"name"},
	ConflictKeys: []string{"name"},
	DoNothing:    true,
}

var movieGenreUpsert = db.UpsertConfig{
	Table:        "movie_genres",
	Columns:      []string{"movie_id", "genre_id"},
	ConflictKeys: []string{"movie_id", "genre_id"},
	DoNothing:    true,
}

var ratingUpsert = db.UpsertConfig{
	Table:        "ratings",
	Columns:      []string{"user_id", "movie_id", "rating", "timestamp"},
	ConflictKeys: []string{"user_id", "movie_id"},
	DoNothing:    true,
}

// statements holds the upsert SQL rendered for one placeholder style.
type statements struct {
	movie      string
	genre      string
	movieGenre string
	rating     string
}

func buildStatements(ph db.Placeholder) statements {
	must := func(cfg db.UpsertConfig) string {
		sql, err := db.BuildUpsert(cfg, ph)
		if err != nil {
			panic(err)
		}
		return sql
	}
	return statements{
		movie:      must(movieUpsert),
		genre:      must(genreUpsert),
		movieGenre: must(movieGenreUpsert),
		rating:     must(ratingUpsert),
	}
}

func movieArgs(movie model.Movie, meta *model.Metadata) []any {
	m := model.Metadata{}
	if meta != nil {
		m = *meta
	}
	return []any{
		movie.ID, movie.Title, movie.Year,
		m.ExternalID, m.Director, m.Plot, m.BoxOffice, m.Released, m.RuntimeMinutes,
	}
}

// enrichUpdate renders an UPDATE for the present fields of meta. It returns
// an empty statement when nothing is present.
func enrichUpdate(id int64, meta model.Metadata, ph db.Placeholder) (string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		if ph == db.Question {
			sets = append(sets, col+" = ?")
		} else {
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	if meta.ExternalID != nil {
		add("imdb_id", *meta.ExternalID)
	}
	if meta.Director != nil {
		add("director", *meta.Director)
	}
	if meta.Plot != nil {
		add("plot", *meta.Plot)
	}
	if meta.BoxOffice != nil {
		add("box_office", *meta.BoxOffice)
	}
	if meta.Released != nil {
		add("released", *meta.Released)
	}
	if meta.RuntimeMinutes != nil {
		add("runtime_minutes", *meta.RuntimeMinutes)
	}
	if len(sets) == 0 {
		return "", nil
	}

	args = append(args, id)
	where := "id = ?"
	if ph == db.Dollar {
		where = fmt.Sprintf("id = $%d", len(args))
	}
	return "UPDATE movies SET " + strings.Join(sets, ", ") + " WHERE " + where, args
}

// retryWithoutExternalID runs write with meta and, when it fails on the
// external ID uniqueness constraint, once more without the external ID.
func retryWithoutExternalID(meta *model.Metadata, write func(*model.Metadata) error, conflict func(error) bool) (bool, error) {
	err := write(meta)
	if err == nil {
		return false, nil
	}
	if meta == nil || meta.ExternalID == nil || !conflict(err) {
		return false, err
	}
	stripped := meta.WithoutExternalID()
	if err := write(&stripped); err != nil {
		return true, err
	}
	return true, nil
}

// formatValue renders a scanned column value for display.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
