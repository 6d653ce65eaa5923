package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/sqlscript"
)

var queryFile string

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run every statement in a SQL file and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("file") {
			cfg.Query.File = queryFile
		}

		script, err := os.ReadFile(cfg.Query.File)
		if errors.Is(err, os.ErrNotExist) {
			return eris.Errorf("%s not found", cfg.Query.File)
		}
		if err != nil {
			return eris.Wrapf(err, "query: read %s", cfg.Query.File)
		}

		if err := requireDatabase(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		statements := sqlscript.Split(string(script))
		zap.L().Info("running queries", zap.String("file", cfg.Query.File), zap.Int("statements", len(statements)))

		out := cmd.OutOrStdout()
		for i, stmt := range statements {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			fmt.Fprintf(out, "\n--- Query %d ---\n%s\n\n", i+1, indent(stmt))

			res, err := st.Query(ctx, stmt)
			if err != nil {
				fmt.Fprintf(out, "Error running query: %v\n", err)
				continue
			}
			if len(res.Columns) == 0 {
				fmt.Fprintf(out, "OK (%d rows affected)\n", res.RowsAffected)
				continue
			}
			if len(res.Rows) == 0 {
				fmt.Fprintln(out, "(no rows returned)")
				continue
			}
			fmt.Fprintln(out, renderTable(res.Columns, res.Rows, nil))
		}
		return nil
	},
}

func indent(stmt string) string {
	lines := strings.Split(stmt, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

func init() {
	queryCmd.Flags().StringVar(&queryFile, "file", "queries.sql", "SQL file to run")
	rootCmd.AddCommand(queryCmd)
}
