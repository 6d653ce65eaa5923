package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/movie-etl/internal/model"
	"github.com/sells-group/movie-etl/internal/store"
)

var (
	runsLimit int
	runsMode  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.RunFilter{Limit: runsLimit}
		switch runsMode {
		case "":
		case string(model.RunModeLoad), string(model.RunModeEnrich):
			filter.Mode = model.RunMode(runsMode)
		default:
			return eris.Errorf("runs: unknown mode %q (want load or enrich)", runsMode)
		}

		if err := requireDatabase(); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(cmd.Context(), filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, runRow(r))
		}
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Mode", "Status", "Started", "Processed", "Enriched", "Error"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
		return nil
	},
}

func runRow(r model.Run) []string {
	processed, enriched := "", ""
	if r.Summary != nil {
		processed = strconv.Itoa(r.Summary.Processed)
		enriched = strconv.Itoa(r.Summary.Enriched)
	}
	errMsg := r.Error
	if len(errMsg) > 60 {
		errMsg = errMsg[:57] + "..."
	}
	return []string{
		r.ID[:min(8, len(r.ID))],
		string(r.Mode),
		string(r.Status),
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		processed,
		enriched,
		errMsg,
	}
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
	runsCmd.Flags().StringVar(&runsMode, "mode", "", "filter by mode (load or enrich)")
	rootCmd.AddCommand(runsCmd)
}
