// Package fetch downloads bundle payloads over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/caffeineduck/deltabundle/logger"
)

// DefaultMaxBodySize caps a payload at 32 MiB.
const DefaultMaxBodySize = 32 << 20

// Fetcher retrieves the body at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// TransportError reports a failed request or a non-success status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is an HTTP Fetcher. It does not retry and adds no timeout of its
// own; bound calls with the context or the HTTP client.
type Client struct {
	client      *http.Client
	maxBodySize int64
	headers     http.Header
	log         *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Defaults to
// http.DefaultClient, which has no timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithMaxBodySize sets the largest accepted body. Larger bodies fail with a
// TransportError.
func WithMaxBodySize(n int64) Option {
	return func(cl *Client) {
		cl.maxBodySize = n
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.headers.Add(key, value)
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) {
		cl.log = l
	}
}

// New returns a client that issues a single GET per Fetch.
func New(opts ...Option) *Client {
	c := &Client{
		client:      http.DefaultClient,
		maxBodySize: DefaultMaxBodySize,
		headers:     make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNop(c.log)
	return c
}

// Fetch issues one GET for url and returns the body of a 2xx response.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &TransportError{URL: url, Err: err}
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.log.Warn("fetch failed", "url", url, "status", resp.StatusCode)
		return "", &TransportError{URL: url, StatusCode: resp.StatusCode}
	}

	// One extra byte tells an exact-limit body from an oversized one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return "", &TransportError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > c.maxBodySize {
		return "", &TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body exceeds %d bytes", c.maxBodySize),
		}
	}
	c.log.Debug("fetched", "url", url, "status", resp.StatusCode, "bytes", len(body))
	return string(body), nil
}
