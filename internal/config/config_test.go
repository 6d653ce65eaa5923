package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "movies.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "schema.sql", cfg.Store.SchemaPath)
	assert.Equal(t, "movies.csv", cfg.Input.MoviesCSV)
	assert.Equal(t, "ratings.csv", cfg.Input.RatingsCSV)
	assert.Equal(t, "http://www.omdbapi.com/", cfg.OMDb.BaseURL)
	assert.Equal(t, 120*time.Millisecond, cfg.OMDb.RequestDelay)
	assert.Equal(t, 3*time.Second, cfg.OMDb.ConnectTimeout)
	assert.Equal(t, 6*time.Second, cfg.OMDb.ReadTimeout)
	assert.Equal(t, "omdb_cache.json", cfg.Cache.Path)
	assert.Equal(t, 50, cfg.Cache.FlushEvery)
	assert.Equal(t, 0, cfg.Load.Limit)
	assert.True(t, cfg.Load.SearchFallback)
	assert.Equal(t, 500, cfg.Enrich.Batch)
	assert.False(t, cfg.Enrich.SearchFallback)
	assert.Equal(t, "queries.sql", cfg.Query.File)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/movies
omdb:
  request_delay: 250ms
enrich:
  batch: 25
  search_fallback: true
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/movies", cfg.Store.DatabaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.OMDb.RequestDelay)
	assert.Equal(t, 25, cfg.Enrich.Batch)
	assert.True(t, cfg.Enrich.SearchFallback)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "omdb_cache.json", cfg.Cache.Path)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  path: from-file.json
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("MOVIEETL_CACHE_PATH", "from-env.json")
	t.Setenv("MOVIEETL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env.json", cfg.Cache.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadBareOMDbKey(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MOVIEETL_OMDB_API_KEY", "")
	t.Setenv("OMDB_API_KEY", "bare-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bare-key", cfg.OMDb.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MOVIEETL_ENRICH_BATCH=7\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("MOVIEETL_ENRICH_BATCH") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Enrich.Batch)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MOVIEETL_STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestValidate(t *testing.T) {
	valid := Config{
		Store: StoreConfig{Driver: "sqlite", DatabaseURL: "movies.db"},
		Cache: CacheConfig{Path: "cache.json"},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"no database url", func(c *Config) { c.Store.DatabaseURL = "" }, "database_url is required"},
		{"no cache path", func(c *Config) { c.Cache.Path = "" }, "cache.path is required"},
		{"negative delay", func(c *Config) { c.OMDb.RequestDelay = -time.Second }, "request_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{OMDb: OMDbConfig{APIKey: "secret"}}
	red := cfg.Redacted()
	assert.Equal(t, "****", red.OMDb.APIKey)
	assert.Equal(t, "secret", cfg.OMDb.APIKey)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
