// Package enrich resolves movie titles to OMDb metadata. It owns the lookup
// fallback chain, the response cache and the run-scoped rate-limit state.
package enrich

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/movie-etl/pkg/omdb"
)

// Skipped is the failure message cached when no network call is attempted.
const Skipped = "fast-mode or rate-limited: skipped"

// NoAPIKey is the failure message cached when no API key is configured.
const NoAPIKey = "No API key set"

// noYear renders an absent year in cache keys; existing cache files use it.
const noYear = "None"

// Cache is the response store consulted before any network call.
type Cache interface {
	Get(key string) (omdb.Movie, bool)
	Put(key string, value omdb.Movie)
}

// Options configures a Client.
type Options struct {
	// Fast short-circuits every lookup with a synthetic failure.
	Fast bool
	// SearchFallback enables the search-then-fetch step after a failed title lookup.
	SearchFallback bool
	// HasAPIKey is false when no OMDb key is configured.
	HasAPIKey bool
}

// Stats counts lookup activity for the run summary.
type Stats struct {
	Lookups      int
	CacheHits    int
	NetworkCalls int
	Found        int
}

// Client runs the OMDb lookup protocol for one pipeline run. It is not safe
// for concurrent use.
type Client struct {
	api         omdb.Client
	cache       Cache
	opts        Options
	rateLimited bool
	stats       Stats
	log         *zap.Logger
}

// NewClient creates a lookup client. api may be nil in fast mode.
func NewClient(api omdb.Client, cache Cache, opts Options) *Client {
	return &Client{
		api:   api,
		cache: cache,
		opts:  opts,
		log:   zap.L().With(zap.String("component", "enrich.client")),
	}
}

// CacheKey builds the cache key for a title and optional year.
func CacheKey(title string, year *int) string {
	y := noYear
	if year != nil {
		y = strconv.Itoa(*year)
	}
	return fmt.Sprintf("%s||%s", title, y)
}

// RateLimited reports whether OMDb refused this run's credentials or quota.
func (c *Client) RateLimited() bool {
	return c.rateLimited
}

// Stats returns the lookup counters so far.
func (c *Client) Stats() Stats {
	return c.stats
}

// Lookup resolves title/year to an OMDb document. Every outcome, success or
// failure, is cached so later runs never repeat the query. A lookup cut
// short by ctx cancellation is not cached.
func (c *Client) Lookup(ctx context.Context, title string, year *int) omdb.Movie {
	c.stats.Lookups++
	key := CacheKey(title, year)

	if doc, ok := c.cache.Get(key); ok {
		c.stats.CacheHits++
		return doc
	}

	if c.opts.Fast || c.rateLimited || c.api == nil {
		return c.store(key, omdb.Failure(Skipped))
	}
	if !c.opts.HasAPIKey {
		return c.store(key, omdb.Failure(NoAPIKey))
	}

	c.stats.NetworkCalls++
	doc, err := c.api.ByTitle(ctx, title, year)
	if ctx.Err() != nil {
		return interrupted(ctx)
	}
	direct := resolve(doc, err)
	switch Classify(doc, err) {
	case OutcomeFound:
		c.stats.Found++
		return c.store(key, direct)
	case OutcomeRateLimited:
		c.tripRateLimit(direct.Error)
		return c.store(key, direct)
	case OutcomeNetwork, OutcomeMalformed:
		c.log.Debug("omdb title lookup failed", zap.String("key", key), zap.String("error", direct.Error))
	}

	if c.opts.SearchFallback {
		found, ok := c.searchFallback(ctx, title, year)
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		if ok {
			c.stats.Found++
			return c.store(key, found)
		}
	}

	return c.store(key, direct)
}

// interrupted is the uncached result of a lookup cut short by cancellation.
// The next run retries the title.
func interrupted(ctx context.Context) omdb.Movie {
	return omdb.Failure("lookup interrupted: " + ctx.Err().Error())
}

// searchFallback searches for title and fetches full details for the first hit.
func (c *Client) searchFallback(ctx context.Context, title string, year *int) (omdb.Movie, bool) {
	if c.rateLimited {
		return omdb.Movie{}, false
	}

	c.stats.NetworkCalls++
	search, err := c.api.Search(ctx, title, year)
	if err != nil {
		c.log.Debug("omdb search failed", zap.String("title", title), zap.Error(err))
		return omdb.Movie{}, false
	}
	if !search.OK() || len(search.Search) == 0 {
		if IsRateLimitMessage(search.Error) {
			c.tripRateLimit(search.Error)
		}
		return omdb.Movie{}, false
	}

	imdbID := search.Search[0].IMDbID
	if imdbID == "" {
		return omdb.Movie{}, false
	}

	c.stats.NetworkCalls++
	doc, err := c.api.ByID(ctx, imdbID)
	switch Classify(doc, err) {
	case OutcomeFound:
		return *doc, true
	case OutcomeRateLimited:
		c.tripRateLimit(doc.Error)
	}
	return omdb.Movie{}, false
}

// resolve turns a wire result into the document that is cached.
func resolve(doc *omdb.Movie, err error) omdb.Movie {
	if err != nil {
		return failureDoc(err)
	}
	if doc == nil {
		return omdb.Failure("empty response")
	}
	return *doc
}

func (c *Client) tripRateLimit(msg string) {
	if c.rateLimited {
		return
	}
	c.rateLimited = true
	c.log.Warn("omdb rate-limited or key rejected; skipping network calls for the rest of this run",
		zap.String("error", msg))
}

func (c *Client) store(key string, doc omdb.Movie) omdb.Movie {
	c.cache.Put(key, doc)
	return doc
}
