package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/movie-etl/internal/model"
)

func printSummary(cmd *cobra.Command, title string, s *model.RunSummary) {
	if s == nil {
		return
	}
	rows := [][]string{
		{"processed", strconv.Itoa(s.Processed)},
		{"enriched", strconv.Itoa(s.Enriched)},
		{"skipped", strconv.Itoa(s.Skipped)},
	}
	if s.Inserted > 0 {
		rows = append(rows, []string{"inserted", strconv.Itoa(s.Inserted)})
	}
	if s.ExternalIDDropped > 0 {
		rows = append(rows, []string{"imdb ids dropped", strconv.Itoa(s.ExternalIDDropped)})
	}
	if s.RatingsRead > 0 {
		rows = append(rows,
			[]string{"ratings read", strconv.Itoa(s.RatingsRead)},
			[]string{"ratings inserted", strconv.FormatInt(s.RatingsInserted, 10)},
			[]string{"ratings dropped", strconv.Itoa(s.RatingsDropped)},
		)
	}
	rows = append(rows,
		[]string{"cache hits", strconv.Itoa(s.CacheHits)},
		[]string{"network calls", strconv.Itoa(s.NetworkCalls)},
		[]string{"rate limited", strconv.FormatBool(s.RateLimited)},
		[]string{"elapsed", s.Elapsed.Round(time.Millisecond).String()},
	)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s finished\n", title)
	if s.StoppedEarly {
		fmt.Fprintln(out, "Stopped early: OMDb rate limit reached. Rerun later to continue.")
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}
