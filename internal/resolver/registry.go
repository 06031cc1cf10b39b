// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultBaseURL is the CDN that serves npm packages by name@version.
	DefaultBaseURL = "https://unpkg.com"

	// DefaultTimeout bounds a single listing request.
	DefaultTimeout = 10 * time.Second

	// DefaultCacheSize is the number of directory listings kept in memory.
	DefaultCacheSize = 128

	// maxJSONResponseBytes is the upper bound on a listing response (10 MB).
	maxJSONResponseBytes = 10 << 20
)

// ErrListingNotFound is returned when the CDN has no such package directory.
var ErrListingNotFound = errors.New("listing not found")

type (
	// listing is the JSON wire format of a `?meta` directory response.
	listing struct {
		Path  string    `json:"path"`
		Type  string    `json:"type"`
		Files []listing `json:"files"`
	}

	// RegistryClient queries the CDN's directory-listing endpoint.
	RegistryClient struct {
		httpClient *http.Client
		baseURL    string
		timeout    time.Duration
		userAgent  string
		cacheSize  int
		cache      *lru.Cache[string, []string]
	}

	// ClientOption configures a RegistryClient during construction.
	ClientOption func(*RegistryClient)
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(r *RegistryClient) {
		r.httpClient = c
	}
}

// WithBaseURL overrides the CDN base URL. It is also the host of emitted links.
func WithBaseURL(base string) ClientOption {
	return func(r *RegistryClient) {
		r.baseURL = strings.TrimRight(base, "/")
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(r *RegistryClient) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(r *RegistryClient) {
		r.userAgent = ua
	}
}

// WithCacheSize sets how many listings are memoized. Non-positive values keep the default.
func WithCacheSize(n int) ClientOption {
	return func(r *RegistryClient) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// NewRegistryClient creates a RegistryClient with sensible defaults.
func NewRegistryClient(opts ...ClientOption) *RegistryClient {
	c := &RegistryClient{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		userAgent:  "userpack/dev",
		cacheSize:  DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	// lru.New only fails for non-positive sizes, which the options rule out.
	c.cache, _ = lru.New[string, []string](c.cacheSize)
	return c
}

// BaseURL returns the CDN base URL without a trailing slash.
func (c *RegistryClient) BaseURL() string { return c.baseURL }

// FileURL returns the direct URL of rel inside name@version.
func (c *RegistryClient) FileURL(name, version, rel string) string {
	return fmt.Sprintf("%s/%s@%s/%s", c.baseURL, name, version, strings.TrimPrefix(rel, "/"))
}

// ListDir returns the paths (relative to the package root) of the files
// directly inside dir of name@version.
//
// A missing directory yields ErrListingNotFound. Transport failures, non-2xx
// answers and undecodable bodies yield a *NetworkError. When the parent
// context is canceled its error is returned unchanged.
func (c *RegistryClient) ListDir(ctx context.Context, name, version, dir string) ([]string, error) {
	key := name + "@" + version + "/" + dir
	if files, ok := c.cache.Get(key); ok {
		return files, nil
	}

	reqURL := fmt.Sprintf("%s/%s@%s/%s/?meta", c.baseURL, name, version, strings.Trim(dir, "/"))

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.doRequest(reqCtx, reqURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: reqURL, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrListingNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: reqURL, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var l listing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&l); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: reqURL, Cause: fmt.Errorf("decoding listing: %w", err)}
	}

	files := make([]string, 0, len(l.Files))
	for _, f := range l.Files {
		if f.Type == "file" {
			files = append(files, strings.TrimPrefix(f.Path, "/"))
		}
	}
	c.cache.Add(key, files)
	return files, nil
}

// doRequest creates and executes a GET request with the common headers.
func (c *RegistryClient) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}
