//go:build !integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/movie-etl/internal/config"
)

// setTestConfig points cfg at a fresh temp directory and restores it afterwards.
func setTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig := cfg
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "movies.db"),
			SchemaPath:  filepath.Join(dir, "schema.sql"),
		},
		Input: config.InputConfig{
			MoviesCSV:  filepath.Join(dir, "movies.csv"),
			RatingsCSV: filepath.Join(dir, "ratings.csv"),
		},
		OMDb: config.OMDbConfig{
			BaseURL:        "http://127.0.0.1:1/",
			ConnectTimeout: time.Second,
			ReadTimeout:    time.Second,
		},
		Cache:  config.CacheConfig{Path: filepath.Join(dir, "omdb_cache.json"), FlushEvery: 50},
		Enrich: config.EnrichConfig{Batch: 500},
		Query:  config.QueryConfig{File: filepath.Join(dir, "queries.sql")},
		Log:    config.LogConfig{Level: "info", Format: "console"},
	}
	t.Cleanup(func() { cfg = orig })
	return dir
}

func writeInputs(t *testing.T) {
	t.Helper()
	movies := "movieId,title,genres\n" +
		"1,Toy Story (1995),Adventure|Animation|Children\n" +
		"2,Jumanji (1995),Adventure|Children|Fantasy\n" +
		"3,Heat (1995),Action|Crime|Thriller\n"
	ratings := "userId,movieId,rating,timestamp\n" +
		"1,1,4.0,964982703\n" +
		"1,3,4.5,964981247\n" +
		"2,1,3.5,964982931\n" +
		"2,99,5.0,964983000\n"
	require.NoError(t, os.WriteFile(cfg.Input.MoviesCSV, []byte(movies), 0o644))
	require.NoError(t, os.WriteFile(cfg.Input.RatingsCSV, []byte(ratings), 0o644))
}

// runCommand invokes cmd's RunE with a background context and captured output.
func runCommand(t *testing.T, cmd *cobra.Command) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, nil)
	return out.String(), err
}

// fastLoad runs a load with OMDb lookups disabled.
func fastLoad(t *testing.T) {
	t.Helper()
	loadFast = true
	t.Cleanup(func() { loadFast = false })
	_, err := runCommand(t, loadCmd)
	require.NoError(t, err)
}
