// Package transport issues HTTP requests through a pluggable evasion
// substrate. Everything above it consumes the Fetcher contract.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"bookfetch/book"
)

const (
	// MetadataTimeout bounds search and landing-page fetches.
	MetadataTimeout = 30 * time.Second
	// PayloadTimeout bounds file downloads; slow mirrors are expected.
	PayloadTimeout = 3 * time.Minute

	maxAttempts = 3

	// UserAgent is sent on every request regardless of substrate.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// backoffBase is the first retry delay; it doubles per attempt. A var
// so tests can avoid real sleeps.
var backoffBase = 2 * time.Second

// Options tune a single fetch.
type Options struct {
	Referer string
	Timeout time.Duration
}

// Fetcher is the substrate-independent fetch contract. Implementations
// differ only in latency and reliability.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts Options) (*book.FetchResult, error)
}

// Client is the plain substrate: net/http, optionally routed through a
// SOCKS5 proxy, driven through a colly collector per call.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient wraps an existing http.Client. The caller owns proxy and
// session state on that client.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{httpClient: httpClient, logger: logger}
}

// HTTPClient exposes the underlying client so the traversal collector
// and the payload downloader share its route and cookies.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Fetch retrieves rawURL. Transport-level failures (dial, reset,
// timeout) are retried with capped exponential backoff; HTTP 4xx/5xx
// are returned as values for the caller to interpret.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*book.FetchResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = MetadataTimeout
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := backoffBase * time.Duration(1<<(attempt-1))
			c.logger.Warn("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.fetchOnce(rawURL, opts.Referer, timeout)
		if err != nil {
			if !retryable(err) {
				return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
			}
			lastErr = err
			continue
		}
		return result, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

// retryable reports whether a fetch failure is transient. Malformed
// URLs, unsupported schemes and collector validation errors fail
// identically on every attempt; only network-level failures earn a
// backoff.
func retryable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// A server dropping the connection mid-response surfaces as EOF.
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (c *Client) fetchOnce(rawURL, referer string, timeout time.Duration) (*book.FetchResult, error) {
	collector := colly.NewCollector(
		colly.UserAgent(UserAgent),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	// Shallow copy so the per-call timeout never races another fetch
	// on the shared client.
	hc := *c.httpClient
	collector.SetClient(&hc)
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		if referer != "" {
			r.Headers.Set("Referer", referer)
		}
	})

	var result *book.FetchResult
	collector.OnResponse(func(r *colly.Response) {
		result = &book.FetchResult{
			StatusCode:         r.StatusCode,
			Body:               r.Body,
			ContentType:        r.Headers.Get("Content-Type"),
			ContentDisposition: r.Headers.Get("Content-Disposition"),
			FinalURL:           r.Request.URL.String(),
		}
	})

	var fetchErr error
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, err
	}
	collector.Wait()

	if result == nil {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("no response for %s", rawURL)
		}
		return nil, fetchErr
	}
	return result, nil
}
