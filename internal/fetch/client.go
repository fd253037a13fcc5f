package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ziadkadry99/foliocache/internal/logging"
)

// DefaultMaxBodyBytes bounds how much of a response body is buffered.
const DefaultMaxBodyBytes int64 = 32 << 20

// ErrBodyTooLarge is returned when a response body exceeds the client limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Fetcher performs network fetches.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Client fetches over HTTP on behalf of pages served from origin.
type Client struct {
	http    *http.Client
	origin  *url.URL
	maxBody int64
	timeout time.Duration
	logger  *slog.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithMaxBodyBytes sets the body buffering limit. Zero or negative keeps the default.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithTimeout bounds each fetch. Zero means no timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client. origin is the page origin used to decide
// whether a response is same-origin, CORS or opaque.
func NewClient(origin *url.URL, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{},
		origin:  origin,
		maxBody: DefaultMaxBodyBytes,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch sends req and buffers the full response.
func (c *Client) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header = CleanHeader(req.Header)
	httpReq.Header.Del("Host")

	switch req.Cache {
	case CacheReload:
		httpReq.Header.Set("Cache-Control", "no-cache")
		httpReq.Header.Set("Pragma", "no-cache")
	case CacheNoStore:
		httpReq.Header.Set("Cache-Control", "no-store")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", req.URL.Redacted(), err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("fetching %s: %w (%d bytes)", req.URL.Redacted(), ErrBodyTooLarge, c.maxBody)
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}

	out := &Response{
		Type:       c.classify(req.Mode, final),
		URL:        final.String(),
		StatusCode: resp.StatusCode,
		Header:     CleanHeader(resp.Header),
		Body:       body,
	}
	c.logger.Debug("fetched",
		"url", req.URL.Redacted(),
		"status", out.StatusCode,
		"type", out.Type,
		"bytes", len(body),
	)
	return out, nil
}

func (c *Client) classify(mode Mode, target *url.URL) ResponseType {
	if c.origin == nil || SameOrigin(c.origin, target) {
		return TypeBasic
	}
	if mode == ModeNoCORS {
		return TypeOpaque
	}
	return TypeCORS
}

// SameOrigin reports whether a and b share scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(hostPort(a), hostPort(b))
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return u.Hostname() + ":" + port
}
