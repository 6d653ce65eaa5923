package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/movie-etl/internal/db"
	"github.com/sells-group/movie-etl/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	stmt statements
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection so the pragmas below hold for every statement.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, stmt: buildStatements(db.Question)}, nil
}

// Migrate applies embedded migrations not yet recorded in schema_migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure migration table")
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		log.Info("applying migration", zap.String("file", m.name))
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", m.name)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)`,
			m.name, time.Now().UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: record migration %s", m.name)
		}
	}
	return nil
}

func (s *SQLiteStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query applied migrations")
	}
	defer rows.Close() //nolint:errcheck

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "sqlite: iterate migrations")
}

// ApplySchemaFile executes the file at path as one script. A missing file
// is not an error; the bool reports whether it was applied.
func (s *SQLiteStore) ApplySchemaFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: read schema file %s", path)
	}
	if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
		return false, eris.Wrapf(err, "sqlite: apply schema file %s", path)
	}
	return true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) MovieIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM movies`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query movie ids")
	}
	defer rows.Close() //nolint:errcheck

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan movie id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate movie ids")
}

func (s *SQLiteStore) SaveMovie(ctx context.Context, movie model.Movie, meta *model.Metadata, genres []string) (SaveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	// A failed statement does not abort a SQLite transaction, so the retry
	// can run in the same one.
	dropped, err := retryWithoutExternalID(meta, func(m *model.Metadata) error {
		_, err := tx.ExecContext(ctx, s.stmt.movie, movieArgs(movie, m)...)
		return err
	}, isSQLiteExternalIDConflict)
	if err != nil {
		return SaveResult{}, eris.Wrapf(err, "sqlite: upsert movie %d", movie.ID)
	}

	for _, g := range genres {
		if _, err := tx.ExecContext(ctx, s.stmt.genre, g); err != nil {
			return SaveResult{}, eris.Wrapf(err, "sqlite: upsert genre %q", g)
		}
		var genreID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM genres WHERE name = ?`, g).Scan(&genreID); err != nil {
			return SaveResult{}, eris.Wrapf(err, "sqlite: lookup genre %q", g)
		}
		if _, err := tx.ExecContext(ctx, s.stmt.movieGenre, movie.ID, genreID); err != nil {
			return SaveResult{}, eris.Wrapf(err, "sqlite: link genre %q to movie %d", g, movie.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, eris.Wrap(err, "sqlite: commit movie")
	}
	return SaveResult{ExternalIDDropped: dropped}, nil
}

func (s *SQLiteStore) EnrichMovie(ctx context.Context, id int64, meta model.Metadata) (EnrichResult, error) {
	var res EnrichResult
	write := func(m *model.Metadata) error {
		query, args := enrichUpdate(id, *m, db.Question)
		if query == "" {
			res.Updated = false
			return nil
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		res.Updated = true
		return nil
	}

	dropped, err := retryWithoutExternalID(&meta, write, isSQLiteExternalIDConflict)
	if err != nil {
		return EnrichResult{}, eris.Wrapf(err, "sqlite: enrich movie %d", id)
	}
	res.ExternalIDDropped = dropped
	return res, nil
}

func (s *SQLiteStore) EnrichmentCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.year, COUNT(r.rating) AS cnt
		FROM movies m
		JOIN ratings r ON r.movie_id = m.id
		WHERE m.director IS NULL OR m.imdb_id IS NULL
		GROUP BY m.id
		ORDER BY cnt DESC, m.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query enrichment candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var year sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Title, &year, &c.RatingCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		if year.Valid {
			y := int(year.Int64)
			c.Year = &y
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

func (s *SQLiteStore) InsertRatings(ctx context.Context, ratings []model.Rating) (int64, error) {
	if len(ratings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.stmt.rating)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare rating insert")
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for _, r := range ratings {
		res, err := stmt.ExecContext(ctx, r.UserID, r.MovieID, r.Rating, r.Timestamp)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert rating user=%d movie=%d", r.UserID, r.MovieID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit ratings")
	}
	return inserted, nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, mode model.RunMode) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO etl_runs (id, mode, status, started_at) VALUES (?, ?, ?, ?)`,
		id, string(mode), string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Mode:      mode,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, summary, "")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, summary *model.RunSummary, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.finishRun(ctx, runID, model.RunStatusFailed, summary, msg)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, msg string) error {
	var summaryJSON sql.NullString
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal summary")
		}
		summaryJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE etl_runs SET status = ?, completed_at = ?, summary = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), summaryJSON, sql.NullString{String: msg, Valid: msg != ""}, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, mode, status, started_at, completed_at, summary, error FROM etl_runs WHERE 1=1`
	var args []any

	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var completed sql.NullTime
		var summary, runErr sql.NullString
		if err := rows.Scan(&r.ID, &r.Mode, &r.Status, &r.StartedAt, &completed, &summary, &runErr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if err := fillRun(&r, completed, summary, runErr); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) Query(ctx context.Context, stmt string) (*QueryResult, error) {
	// The store runs on a single connection, so the total_changes() delta
	// belongs to stmt alone.
	before, err := s.totalChanges(ctx)
	if err != nil {
		return nil, err
	}

	out, err := s.query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(out.Columns) == 0 {
		after, err := s.totalChanges(ctx)
		if err != nil {
			return nil, err
		}
		out.RowsAffected = after - before
	}
	return out, nil
}

func (s *SQLiteStore) query(ctx context.Context, stmt string) (*QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query")
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: columns")
	}

	out := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}
	return out, nil
}

func (s *SQLiteStore) totalChanges(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT total_changes()").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: read total changes")
	}
	return n, nil
}

// isSQLiteExternalIDConflict matches a UNIQUE violation on movies.imdb_id.
func isSQLiteExternalIDConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(strings.ToLower(se.Error()), "imdb_id")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func fillRun(r *model.Run, completed sql.NullTime, summary, runErr sql.NullString) error {
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	if summary.Valid && summary.String != "" {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
			return eris.Wrapf(err, "store: unmarshal summary for run %s", r.ID)
		}
	}
	r.Error = runErr.String
	return nil
}
