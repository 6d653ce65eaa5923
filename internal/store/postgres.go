package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/db"
	"github.com/sells-group/movie-etl/internal/model"
)

// externalIDConstraint is the unique constraint on movies.imdb_id.
const externalIDConstraint = "movies_imdb_id_key"

// migrationLockID keys the advisory lock held while migrating.
const migrationLockID = 20250917

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	stmt statements
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, stmt: buildStatements(db.Dollar)}
}

// Migrate applies embedded migrations not yet recorded in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	// Advisory lock prevents concurrent migration runs.
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		log.Info("applying migration", zap.String("file", m.name))
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", m.name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())",
			m.name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", m.name)
		}
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

// ApplySchemaFile executes the file at path as one script. A missing file
// is not an error; the bool reports whether it was applied.
func (s *PostgresStore) ApplySchemaFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: read schema file %s", path)
	}
	if _, err := s.pool.Exec(ctx, string(data)); err != nil {
		return false, eris.Wrapf(err, "postgres: apply schema file %s", path)
	}
	return true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) MovieIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, "SELECT id FROM movies")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query movie ids")
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan movie id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate movie ids")
}

func (s *PostgresStore) SaveMovie(ctx context.Context, movie model.Movie, meta *model.Metadata, genres []string) (SaveResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SaveResult{}, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// A failed statement aborts the transaction, so each attempt runs
	// inside a savepoint.
	dropped, err := retryWithoutExternalID(meta, func(m *model.Metadata) error {
		if _, err := tx.Exec(ctx, "SAVEPOINT movie_upsert"); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, s.stmt.movie, movieArgs(movie, m)...); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT movie_upsert"); rbErr != nil {
				return eris.Wrap(rbErr, "postgres: rollback to savepoint")
			}
			return err
		}
		return nil
	}, isPostgresExternalIDConflict)
	if err != nil {
		return SaveResult{}, eris.Wrapf(err, "postgres: upsert movie %d", movie.ID)
	}

	for _, g := range genres {
		if _, err := tx.Exec(ctx, s.stmt.genre, g); err != nil {
			return SaveResult{}, eris.Wrapf(err, "postgres: upsert genre %q", g)
		}
		var genreID int64
		if err := tx.QueryRow(ctx, "SELECT id FROM genres WHERE name = $1", g).Scan(&genreID); err != nil {
			return SaveResult{}, eris.Wrapf(err, "postgres: lookup genre %q", g)
		}
		if _, err := tx.Exec(ctx, s.stmt.movieGenre, movie.ID, genreID); err != nil {
			return SaveResult{}, eris.Wrapf(err, "postgres: link genre %q to movie %d", g, movie.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return SaveResult{}, eris.Wrap(err, "postgres: commit movie")
	}
	return SaveResult{ExternalIDDropped: dropped}, nil
}

func (s *PostgresStore) EnrichMovie(ctx context.Context, id int64, meta model.Metadata) (EnrichResult, error) {
	var res EnrichResult
	write := func(m *model.Metadata) error {
		query, args := enrichUpdate(id, *m, db.Dollar)
		if query == "" {
			res.Updated = false
			return nil
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return err
		}
		res.Updated = true
		return nil
	}

	dropped, err := retryWithoutExternalID(&meta, write, isPostgresExternalIDConflict)
	if err != nil {
		return EnrichResult{}, eris.Wrapf(err, "postgres: enrich movie %d", id)
	}
	res.ExternalIDDropped = dropped
	return res, nil
}

func (s *PostgresStore) EnrichmentCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.title, m.year, COUNT(r.rating) AS cnt
		FROM movies m
		JOIN ratings r ON r.movie_id = m.id
		WHERE m.director IS NULL OR m.imdb_id IS NULL
		GROUP BY m.id, m.title, m.year
		ORDER BY cnt DESC, m.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query enrichment candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Year, &c.RatingCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (s *PostgresStore) InsertRatings(ctx context.Context, ratings []model.Rating) (int64, error) {
	rows := make([][]any, len(ratings))
	for i, r := range ratings {
		rows[i] = []any{r.UserID, r.MovieID, r.Rating, r.Timestamp}
	}
	n, err := db.BulkUpsert(ctx, s.pool, ratingUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert ratings")
	}
	return n, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, mode model.RunMode) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		"INSERT INTO etl_runs (id, mode, status, started_at) VALUES ($1, $2, $3, $4)",
		id, string(mode), string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Mode:      mode,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, summary, nil)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, summary *model.RunSummary, runErr error) error {
	var msg *string
	if runErr != nil {
		m := runErr.Error()
		msg = &m
	}
	return s.finishRun(ctx, runID, model.RunStatusFailed, summary, msg)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, msg *string) error {
	var summaryJSON []byte
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
		summaryJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE etl_runs SET status = $1, completed_at = $2, summary = $3, error = $4 WHERE id = $5",
		string(status), time.Now().UTC(), summaryJSON, msg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := "SELECT id, mode, status, started_at, completed_at, summary, error FROM etl_runs"
	var args []any

	if filter.Mode != "" {
		args = append(args, string(filter.Mode))
		query += " WHERE mode = $1"
	}
	query += " ORDER BY started_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	if len(args) == 2 {
		query += " LIMIT $2"
	} else {
		query += " LIMIT $1"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summary []byte
		var runErr *string
		if err := rows.Scan(&r.ID, &r.Mode, &r.Status, &r.StartedAt, &r.CompletedAt, &summary, &runErr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(summary) > 0 {
			r.Summary = &model.RunSummary{}
			if err := json.Unmarshal(summary, r.Summary); err != nil {
				return nil, eris.Wrapf(err, "store: unmarshal summary for run %s", r.ID)
			}
		}
		if runErr != nil {
			r.Error = *runErr
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) Query(ctx context.Context, stmt string) (*QueryResult, error) {
	rows, err := s.pool.Query(ctx, stmt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query")
	}
	defer rows.Close()

	out := &QueryResult{}
	for _, fd := range rows.FieldDescriptions() {
		out.Columns = append(out.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read row")
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}
	rows.Close()
	out.RowsAffected = rows.CommandTag().RowsAffected()
	return out, nil
}

// isPostgresExternalIDConflict matches a unique violation on movies.imdb_id.
func isPostgresExternalIDConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == externalIDConstraint
}
