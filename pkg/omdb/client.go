// Package omdb provides a client for the OMDb movie information API.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OMDb endpoint.
const DefaultBaseURL = "http://www.omdbapi.com/"

// Client defines the OMDb lookup operations.
//
// API-level failures ("Response":"False") are returned as documents, not
// errors. An error means the request failed in transport or the body was not
// JSON (*ResponseError).
type Client interface {
	// ByTitle looks up a title, optionally narrowed to a release year.
	ByTitle(ctx context.Context, title string, year *int) (*Movie, error)
	// ByID fetches full details for an IMDb ID.
	ByID(ctx context.Context, imdbID string) (*Movie, error)
	// Search runs a fuzzy movie search.
	Search(ctx context.Context, title string, year *int) (*SearchResponse, error)
}

// ResponseError reports a response body that could not be decoded.
type ResponseError struct {
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Option configures the OMDb client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRequestDelay sets the minimum spacing between requests. Zero disables throttling.
func WithRequestDelay(d time.Duration) Option {
	return func(c *httpClient) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithTimeouts sets the connect and response-header timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *httpClient) {
		c.http = newHTTPClient(connect, read)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new OMDb client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    newHTTPClient(3*time.Second, 6*time.Second),
		limiter: rate.NewLimiter(rate.Every(120*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	return &http.Client{
		Timeout: connect + read,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: read,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func (c *httpClient) ByTitle(ctx context.Context, title string, year *int) (*Movie, error) {
	params := url.Values{"t": {title}}
	if year != nil {
		params.Set("y", strconv.Itoa(*year))
	}
	var m Movie
	if err := c.get(ctx, params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *httpClient) ByID(ctx context.Context, imdbID string) (*Movie, error) {
	var m Movie
	if err := c.get(ctx, url.Values{"i": {imdbID}}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *httpClient) Search(ctx context.Context, title string, year *int) (*SearchResponse, error) {
	params := url.Values{"s": {title}, "type": {"movie"}}
	if year != nil {
		params.Set("y", strconv.Itoa(*year))
	}
	var s SearchResponse
	if err := c.get(ctx, params, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// get performs one throttled GET and decodes the JSON body into out.
func (c *httpClient) get(ctx context.Context, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "omdb: wait for rate limiter")
	}

	params.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "omdb: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The *url.Error text carries the full request URL, api key included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return eris.Wrap(err, "omdb: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "omdb: read response body")
	}

	// OMDb answers auth failures with 401 and a JSON document, so the body
	// decides success, not the status code.
	if err := json.Unmarshal(body, out); err != nil {
		return &ResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}
