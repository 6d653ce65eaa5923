// Package config loads movie-etl configuration from config.yaml, .env and the environment.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	OMDb   OMDbConfig   `yaml:"omdb" mapstructure:"omdb"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Load   LoadConfig   `yaml:"load" mapstructure:"load"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Query  QueryConfig  `yaml:"query" mapstructure:"query"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SchemaPath  string `yaml:"schema_path" mapstructure:"schema_path"`
}

// InputConfig points at the MovieLens CSV files.
type InputConfig struct {
	MoviesCSV  string `yaml:"movies_csv" mapstructure:"movies_csv"`
	RatingsCSV string `yaml:"ratings_csv" mapstructure:"ratings_csv"`
}

// OMDbConfig holds OMDb API settings.
type OMDbConfig struct {
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	RequestDelay   time.Duration `yaml:"request_delay" mapstructure:"request_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
}

// CacheConfig configures the OMDb response cache file.
type CacheConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	FlushEvery int    `yaml:"flush_every" mapstructure:"flush_every"`
}

// LoadConfig configures the full-load pipeline.
type LoadConfig struct {
	Limit          int  `yaml:"limit" mapstructure:"limit"`
	SearchFallback bool `yaml:"search_fallback" mapstructure:"search_fallback"`
}

// EnrichConfig configures the enrichment-only pipeline.
type EnrichConfig struct {
	Batch          int  `yaml:"batch" mapstructure:"batch"`
	SearchFallback bool `yaml:"search_fallback" mapstructure:"search_fallback"`
}

// QueryConfig configures the query runner.
type QueryConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and environment.
func Load() (*Config, error) {
	// .env is optional; values already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MOVIEETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("omdb.api_key", "MOVIEETL_OMDB_API_KEY", "OMDB_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind omdb api key")
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "movies.db")
	v.SetDefault("store.schema_path", "schema.sql")
	v.SetDefault("input.movies_csv", "movies.csv")
	v.SetDefault("input.ratings_csv", "ratings.csv")
	v.SetDefault("omdb.base_url", "http://www.omdbapi.com/")
	v.SetDefault("omdb.request_delay", 120*time.Millisecond)
	v.SetDefault("omdb.connect_timeout", 3*time.Second)
	v.SetDefault("omdb.read_timeout", 6*time.Second)
	v.SetDefault("cache.path", "omdb_cache.json")
	v.SetDefault("cache.flush_every", 50)
	v.SetDefault("load.limit", 0)
	v.SetDefault("load.search_fallback", true)
	v.SetDefault("enrich.batch", 500)
	v.SetDefault("enrich.search_fallback", false)
	v.SetDefault("query.file", "queries.sql")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipelines cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q (want sqlite or postgres)", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Cache.Path == "" {
		return eris.New("config: cache.path is required")
	}
	if c.OMDb.RequestDelay < 0 {
		return eris.New("config: omdb.request_delay must not be negative")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.OMDb.APIKey != "" {
		c.OMDb.APIKey = "****"
	}
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
