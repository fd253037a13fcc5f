package fetch

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Mode mirrors the request mode a page attaches to a fetch.
type Mode string

const (
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
	ModeNavigate   Mode = "navigate"
)

// CacheMode controls how intermediate HTTP caches are used for a request.
type CacheMode string

const (
	CacheDefault CacheMode = "default"
	// CacheReload always goes to the origin, never to an HTTP cache.
	CacheReload  CacheMode = "reload"
	CacheNoStore CacheMode = "no-store"
)

// Destination is what the requested resource will be used for.
type Destination string

const (
	DestEmpty    Destination = ""
	DestImage    Destination = "image"
	DestDocument Destination = "document"
	DestScript   Destination = "script"
	DestStyle    Destination = "style"
	DestFont     Destination = "font"
)

// ResponseType classifies how much of a response the page may inspect.
type ResponseType string

const (
	TypeBasic  ResponseType = "basic"
	TypeCORS   ResponseType = "cors"
	TypeOpaque ResponseType = "opaque"
)

// Request identifies a resource to fetch.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Mode        Mode
	Cache       CacheMode
	Destination Destination
}

// RequestOption customises a Request built by NewRequest.
type RequestOption func(*Request)

// WithMode sets the request mode.
func WithMode(m Mode) RequestOption {
	return func(r *Request) { r.Mode = m }
}

// WithCache sets the cache mode.
func WithCache(c CacheMode) RequestOption {
	return func(r *Request) { r.Cache = c }
}

// WithDestination sets the request destination.
func WithDestination(d Destination) RequestOption {
	return func(r *Request) { r.Destination = d }
}

// NewRequest builds a GET request for rawURL, resolving relative
// references against base when base is non-nil.
func NewRequest(rawURL string, base *url.URL, opts ...RequestOption) (*Request, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Fragment = ""
	u.RawFragment = ""

	r := &Request{
		Method: http.MethodGet,
		URL:    u,
		Header: make(http.Header),
		Mode:   ModeCORS,
		Cache:  CacheDefault,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	u := *r.URL
	c.URL = &u
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

// Response is a fully buffered snapshot of an HTTP response.
type Response struct {
	Type       ResponseType
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Opaque reports whether the response came from a cross-origin no-cors fetch.
func (r *Response) Opaque() bool {
	return r.Type == TypeOpaque
}

// Cacheable reports whether the response may be written to a cache:
// any successful response, or any opaque one since its status cannot be
// inspected by the page.
func (r *Response) Cacheable() bool {
	return r.OK() || r.Opaque()
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}
