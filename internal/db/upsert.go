package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Placeholder selects the bind parameter syntax of a driver.
type Placeholder int

const (
	// Dollar renders $1, $2, ... (Postgres).
	Dollar Placeholder = iota
	// Question renders ?, ?, ... (SQLite).
	Question
)

// UpsertConfig defines the parameters for an upsert statement.
type UpsertConfig struct {
	Table        string   // target table (e.g., "movies")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to overwrite on conflict; nil = all non-conflict columns
	CoalesceCols []string // columns that keep the existing value when the new one is NULL
	DoNothing    bool     // ignore conflicting rows instead of updating
}

func (cfg UpsertConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

// updateCols returns the overwrite columns, defaulting to every column that
// is neither a conflict key nor coalesced.
func (cfg UpsertConfig) updateCols() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	skip := make(map[string]bool, len(cfg.ConflictKeys)+len(cfg.CoalesceCols))
	for _, k := range cfg.ConflictKeys {
		skip[k] = true
	}
	for _, k := range cfg.CoalesceCols {
		skip[k] = true
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !skip[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// conflictClause renders "ON CONFLICT (...) DO ...".
func (cfg UpsertConfig) conflictClause() string {
	conflict := fmt.Sprintf("ON CONFLICT (%s)", quoteAndJoin(cfg.ConflictKeys))

	target := pgx.Identifier{baseTable(cfg.Table)}.Sanitize()
	var setClauses []string
	for _, col := range cfg.updateCols() {
		c := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	for _, col := range cfg.CoalesceCols {
		c := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = COALESCE(excluded.%s, %s.%s)", c, c, target, c))
	}

	if cfg.DoNothing || len(setClauses) == 0 {
		return conflict + " DO NOTHING"
	}
	return conflict + " DO UPDATE SET " + strings.Join(setClauses, ", ")
}

// BuildUpsert renders a single-row INSERT ... ON CONFLICT statement.
func BuildUpsert(cfg UpsertConfig, ph Placeholder) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	params := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		if ph == Question {
			params[i] = "?"
		} else {
			params[i] = fmt.Sprintf("$%d", i+1)
		}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(params, ", "),
		cfg.conflictClause(),
	), nil
}

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
// 1. Creates a temp table with the same columns
// 2. COPY rows into the temp table
// 3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO ...
// 4. Drops the temp table on commit
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		cfg.conflictClause(),
	)

	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}

	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "public.movies".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// baseTable strips a schema qualifier.
func baseTable(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
