// Package proxy routes site traffic through the active cache worker and
// falls back to a reverse proxy for everything the worker leaves alone.
package proxy

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/ziadkadry99/foliocache/internal/fetch"
	"github.com/ziadkadry99/foliocache/internal/logging"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

// PageObserver is told about page navigations.
type PageObserver interface {
	OnPageLoad(pageURL string)
}

// Options configures a Handler.
type Options struct {
	// Transport carries requests the worker does not intercept.
	Transport http.RoundTripper
	Pages     PageObserver
	Logger    *slog.Logger
}

// Handler is the catch-all site handler.
type Handler struct {
	origin  *url.URL
	reg     *worker.Registration
	pages   PageObserver
	reverse *httputil.ReverseProxy
	logger  *slog.Logger
}

// New creates a Handler for the site at origin.
func New(origin *url.URL, reg *worker.Registration, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	h := &Handler{
		origin: origin,
		reg:    reg,
		pages:  opts.Pages,
		logger: opts.Logger,
	}
	h.reverse = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = h.Target(pr.In)
			pr.Out.Host = ""
			pr.SetXForwarded()
		},
		Transport: opts.Transport,
		ErrorLog:  slog.NewLogLogger(opts.Logger.Handler(), slog.LevelWarn),
	}
	return h
}

// Target is the upstream URL for r: the request URI itself when the client
// uses us as a forward proxy, otherwise the path joined onto the origin.
func (h *Handler) Target(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		u := *r.URL
		return &u
	}
	u := *h.origin
	u.Path = joinPath(h.origin.Path, r.URL.Path)
	// Keep the client's escaping upstream; String falls back to the
	// default encoding when the two disagree.
	u.RawPath = joinPath(h.origin.EscapedPath(), r.URL.EscapedPath())
	u.RawQuery = r.URL.RawQuery
	u.Fragment = ""
	return &u
}

func joinPath(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// Request converts r into the worker's request form.
func (h *Handler) Request(r *http.Request) *fetch.Request {
	header := fetch.CleanHeader(r.Header)
	// Let the network client negotiate and decode compression itself.
	header.Del("Accept-Encoding")
	return &fetch.Request{
		Method:      r.Method,
		URL:         h.Target(r),
		Header:      header,
		Mode:        modeOf(r),
		Cache:       cacheOf(r),
		Destination: destinationOf(r),
	}
}

func modeOf(r *http.Request) fetch.Mode {
	switch m := fetch.Mode(strings.ToLower(r.Header.Get("Sec-Fetch-Mode"))); m {
	case fetch.ModeCORS, fetch.ModeNoCORS, fetch.ModeSameOrigin, fetch.ModeNavigate:
		return m
	}
	return fetch.ModeCORS
}

func destinationOf(r *http.Request) fetch.Destination {
	switch d := fetch.Destination(strings.ToLower(r.Header.Get("Sec-Fetch-Dest"))); d {
	case fetch.DestImage, fetch.DestDocument, fetch.DestScript, fetch.DestStyle, fetch.DestFont:
		return d
	}
	return fetch.DestEmpty
}

func cacheOf(r *http.Request) fetch.CacheMode {
	cc := strings.ToLower(r.Header.Get("Cache-Control"))
	switch {
	case strings.Contains(cc, "no-store"):
		return fetch.CacheNoStore
	case strings.Contains(cc, "no-cache"), r.Header.Get("Pragma") == "no-cache":
		return fetch.CacheReload
	}
	return fetch.CacheDefault
}

func isNavigation(req *fetch.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	return req.Mode == fetch.ModeNavigate || req.Destination == fetch.DestDocument
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := h.Request(r)

	if h.pages != nil && isNavigation(req) {
		h.pages.OnPageLoad(req.URL.String())
	}

	if active := h.reg.Active(); active != nil {
		resp, handled, err := active.HandleFetch(r.Context(), req)
		if handled {
			if err != nil {
				h.logger.Warn("intercepted fetch failed", "url", req.URL.Redacted(), "error", err)
				http.Error(w, "bad gateway", http.StatusBadGateway)
				return
			}
			writeResponse(w, r, resp)
			return
		}
	}

	h.reverse.ServeHTTP(w, r)
}

// writeResponse replays a buffered response. Full 200 responses go through
// http.ServeContent so the client's validators and ranges still apply.
func writeResponse(w http.ResponseWriter, r *http.Request, resp *fetch.Response) {
	header := w.Header()
	for k, v := range fetch.CleanHeader(resp.Header) {
		header[k] = v
	}
	header.Del("Content-Length")

	if resp.StatusCode == http.StatusOK {
		var modtime time.Time
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				modtime = t
			}
		}
		http.ServeContent(w, r, "", modtime, bytes.NewReader(resp.Body))
		return
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write(resp.Body)
	}
}
