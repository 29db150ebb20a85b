// Package search queries a JSON web search API for the lookahead reviewer.
//
// The endpoint is called as GET <endpoint>?q=<query>&count=<n>. Responses
// are read with gjson from the first result array found under one of the
// common layouts: "results", "web.results", "items", "organic_results" or
// "data".
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

// DefaultMaxResults caps results per query when Config.MaxResults is zero.
const DefaultMaxResults = 5

// maxBody bounds the response size read from the API.
const maxBody = 4 << 20

var resultPaths = []string{"results", "web.results", "items", "organic_results", "data"}

// Config configures the client.
type Config struct {
	Endpoint   string
	APIKey     string
	MaxResults int
}

// Client calls the search API. It implements review.Searcher.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ review.Searcher = (*Client)(nil)

// New creates a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Available reports whether an endpoint is configured.
func (c *Client) Available() bool {
	return c != nil && c.cfg.Endpoint != ""
}

// Search runs one query bounded by timeout.
func (c *Client) Search(ctx context.Context, query string, timeout time.Duration) ([]review.SearchResult, error) {
	if !c.Available() {
		return nil, apperr.New(apperr.KindConfiguration, "search", "no endpoint configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "search", fmt.Errorf("parse endpoint: %w", err))
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(c.cfg.MaxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperr.New(apperr.KindTimeout, "search", "%q timed out after %s", query, timeout)
		}
		return nil, apperr.Wrap(apperr.KindExternalFailure, "search", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalFailure, "search", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindExternalFailure, "search", "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return c.parse(body)
}

func (c *Client) parse(body []byte) ([]review.SearchResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperr.New(apperr.KindExternalFailure, "search", "invalid JSON response")
	}
	doc := gjson.ParseBytes(body)

	var list gjson.Result
	for _, p := range resultPaths {
		if r := doc.Get(p); r.IsArray() {
			list = r
			break
		}
	}

	results := []review.SearchResult{}
	list.ForEach(func(_, item gjson.Result) bool {
		r := review.SearchResult{
			Title:   first(item, "title", "name"),
			Snippet: first(item, "snippet", "description", "content", "body"),
			URL:     first(item, "url", "link", "href"),
		}
		if r.Title != "" || r.Snippet != "" {
			results = append(results, r)
		}
		return len(results) < c.cfg.MaxResults
	})
	return results, nil
}

func first(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(item.Get(k).String()); v != "" {
			return v
		}
	}
	return ""
}
