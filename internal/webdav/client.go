// Package webdav is a minimal client for the document store: PUT, HEAD,
// ranged GET, MKCOL and DELETE against a WebDAV origin, wrapped with retry
// and circuit-breaker protection so a flaky storage backend degrades
// instead of cascading into every upload request.
package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flightclaims/claims-engine/internal/platform/ratelimit"
	"github.com/flightclaims/claims-engine/internal/platform/resilience"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	Username   string
	Password   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      resilience.RetryConfig
	Breaker    resilience.Config
	RateLimit  ratelimit.Config
}

// DefaultClientConfig applies the document store's standard timeouts and
// resilience policy.
func DefaultClientConfig(baseURL, username, password string) ClientConfig {
	return ClientConfig{
		BaseURL:   baseURL,
		Username:  username,
		Password:  password,
		Timeout:   30 * time.Second,
		Retry:     resilience.DefaultRetryConfig(),
		Breaker:   resilience.DefaultConfig(),
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Client talks WebDAV over HTTP, one logical operation per method.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	limiter    *ratelimit.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: client,
		retry:      cfg.Retry,
		breaker:    resilience.New(cfg.Breaker),
		limiter:    ratelimit.New(cfg.RateLimit),
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// do applies basic auth and the client's outbound rate limit before
// dispatching, so a burst of uploads can't saturate the storage
// backend's own connection budget.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("webdav: rate limit wait: %w", err)
	}
	return c.httpClient.Do(req)
}

// withResilience wraps a single WebDAV call with the client's retry policy
// inside its circuit breaker, so an open breaker fails fast without
// burning through the retry budget.
func (c *Client) withResilience(ctx context.Context, fn func() error) error {
	return c.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retry, fn)
	})
}

// Put uploads body as path's full content, creating or overwriting it. size
// is the content length if known, or -1 to let the server accept chunked
// transfer encoding.
//
// body is streamed directly into the HTTP request rather than buffered
// first, so a large encrypted upload never needs a second full-size copy
// in memory on top of whatever the caller already holds. That only stays
// safe under retry if the attempt can be replayed from the start: when
// body also implements io.Seeker (a *bytes.Reader, a re-opened file) Put
// rewinds it between attempts and keeps the normal retry policy; a
// single-pass reader such as the write side of an io.Pipe gets exactly
// one attempt, since there is no way to replay bytes already written to
// the wire.
func (c *Client) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error {
	seeker, replayable := body.(io.Seeker)
	attempted := false
	call := func() error {
		if replayable && attempted {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("webdav: rewind body for retry: %w", err)
			}
		}
		attempted = true
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(path), io.NopCloser(body))
		if err != nil {
			return err
		}
		if size >= 0 {
			req.ContentLength = size
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp, http.StatusOK, http.StatusCreated, http.StatusNoContent)
	}
	if !replayable {
		return c.breaker.Execute(ctx, call)
	}
	return c.withResilience(ctx, call)
}

// Head checks whether path exists, returning its size if so.
func (c *Client) Head(ctx context.Context, path string) (int64, error) {
	var size int64
	err := c.withResilience(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url(path), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp, http.StatusOK); err != nil {
			return err
		}
		size = resp.ContentLength
		return nil
	})
	return size, err
}

// GetRange fetches byte range [start,end] (inclusive) of path, or the whole
// object if end < 0.
func (c *Client) GetRange(ctx context.Context, path string, start, end int64) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.withResilience(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
		if err != nil {
			return err
		}
		if end >= 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
		} else if start > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		if err := checkStatus(resp, http.StatusOK, http.StatusPartialContent); err != nil {
			resp.Body.Close()
			return err
		}
		body = resp.Body
		return nil
	})
	return body, err
}

// Mkcol creates a collection (directory), tolerating "already exists".
func (c *Client) Mkcol(ctx context.Context, path string) error {
	return c.withResilience(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "MKCOL", c.url(path), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusMethodNotAllowed {
			return nil // collection already exists
		}
		return checkStatus(resp, http.StatusOK, http.StatusCreated)
	})
}

// Delete removes path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.withResilience(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url(path), nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp, http.StatusOK, http.StatusNoContent, http.StatusNotFound)
	})
}

func checkStatus(resp *http.Response, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("webdav: unexpected status %d", resp.StatusCode)
}
