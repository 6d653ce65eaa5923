package main

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/internal/cache"
	"github.com/sells-group/movie-etl/internal/enrich"
	"github.com/sells-group/movie-etl/internal/store"
	"github.com/sells-group/movie-etl/pkg/omdb"
)

// initStore opens the configured store and brings its schema up to date.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	applied, err := st.ApplySchemaFile(ctx, cfg.Store.SchemaPath)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	if applied {
		zap.L().Info("applied schema file", zap.String("path", cfg.Store.SchemaPath))
	}
	return st, nil
}

// requireDatabase fails when the SQLite database file has not been created
// by a load yet.
func requireDatabase() error {
	if cfg.Store.Driver != "sqlite" {
		return nil
	}
	if _, err := os.Stat(cfg.Store.DatabaseURL); errors.Is(err, os.ErrNotExist) {
		return eris.Errorf("%s not found. Run load first", cfg.Store.DatabaseURL)
	}
	return nil
}

// initLookup opens the response cache and builds a lookup client around it.
func initLookup(fast, searchFallback bool) (*enrich.Client, *cache.File[omdb.Movie], error) {
	c, err := cache.Open[omdb.Movie](cfg.Cache.Path)
	if err != nil {
		return nil, nil, err
	}

	var api omdb.Client
	if !fast {
		api = omdb.NewClient(cfg.OMDb.APIKey,
			omdb.WithBaseURL(cfg.OMDb.BaseURL),
			omdb.WithRequestDelay(cfg.OMDb.RequestDelay),
			omdb.WithTimeouts(cfg.OMDb.ConnectTimeout, cfg.OMDb.ReadTimeout),
		)
	}
	if !fast && cfg.OMDb.APIKey == "" {
		zap.L().Warn("no OMDb API key set (OMDB_API_KEY); lookups will be cached as failures")
	}

	client := enrich.NewClient(api, c, enrich.Options{
		Fast:           fast,
		SearchFallback: searchFallback,
		HasAPIKey:      cfg.OMDb.APIKey != "",
	})
	zap.L().Debug("omdb cache opened", zap.String("path", c.Path()), zap.Int("entries", c.Len()))
	return client, c, nil
}
