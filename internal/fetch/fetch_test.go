package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestNewRequestResolvesRelative(t *testing.T) {
	base := mustParse(t, "https://example.com/portfolio/")

	req, err := NewRequest("images/a.png#frag", base, WithMode(ModeNoCORS), WithCache(CacheReload))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if got := req.URL.String(); got != "https://example.com/portfolio/images/a.png" {
		t.Errorf("URL = %q", got)
	}
	if req.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", req.Method)
	}
	if req.Mode != ModeNoCORS || req.Cache != CacheReload {
		t.Errorf("Mode/Cache = %q/%q", req.Mode, req.Cache)
	}
}

func TestNewRequestRejects(t *testing.T) {
	cases := []string{"images/a.png", "ftp://example.com/a.png", "http://[::1"}
	for _, raw := range cases {
		if _, err := NewRequest(raw, nil); err == nil {
			t.Errorf("NewRequest(%q) expected error", raw)
		}
	}
}

func TestCacheable(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		want bool
	}{
		{"ok", Response{Type: TypeBasic, StatusCode: 200}, true},
		{"no content", Response{Type: TypeBasic, StatusCode: 204}, true},
		{"not found", Response{Type: TypeBasic, StatusCode: 404}, false},
		{"redirect", Response{Type: TypeCORS, StatusCode: 302}, false},
		{"opaque error", Response{Type: TypeOpaque, StatusCode: 500}, true},
	}
	for _, tc := range cases {
		if got := tc.resp.Cacheable(); got != tc.want {
			t.Errorf("%s: Cacheable() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClientFetchReloadHeaders(t *testing.T) {
	var gotCacheControl, gotPragma, gotConnection string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCacheControl = r.Header.Get("Cache-Control")
		gotPragma = r.Header.Get("Pragma")
		gotConnection = r.Header.Get("X-Hop")
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	origin := mustParse(t, srv.URL)
	c := NewClient(origin)

	req, err := NewRequest(srv.URL+"/a.png", nil, WithCache(CacheReload))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Connection", "X-Hop")
	req.Header.Set("X-Hop", "1")

	resp, err := c.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotCacheControl != "no-cache" || gotPragma != "no-cache" {
		t.Errorf("reload headers = %q/%q", gotCacheControl, gotPragma)
	}
	if gotConnection != "" {
		t.Errorf("hop-by-hop header forwarded: %q", gotConnection)
	}
	if resp.Type != TypeBasic {
		t.Errorf("Type = %q, want basic", resp.Type)
	}
	if string(resp.Body) != "png-bytes" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestClientClassifiesCrossOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(mustParse(t, "https://portfolio.example"))

	noCORS, _ := NewRequest(srv.URL+"/x.jpg", nil, WithMode(ModeNoCORS))
	resp, err := c.Fetch(context.Background(), noCORS)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Type != TypeOpaque {
		t.Errorf("no-cors cross-origin Type = %q, want opaque", resp.Type)
	}
	if !resp.Cacheable() {
		t.Error("opaque 404 should be cacheable")
	}

	cors, _ := NewRequest(srv.URL+"/x.jpg", nil)
	resp, err = c.Fetch(context.Background(), cors)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Type != TypeCORS {
		t.Errorf("cors cross-origin Type = %q, want cors", resp.Type)
	}
	if resp.Cacheable() {
		t.Error("cors 404 should not be cacheable")
	}
}

func TestClientBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	c := NewClient(mustParse(t, srv.URL), WithMaxBodyBytes(16))
	req, _ := NewRequest(srv.URL+"/big.png", nil)

	_, err := c.Fetch(context.Background(), req)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestSameOrigin(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"http://a.test", "http://a.test:80/x", true},
		{"https://a.test", "https://A.test:443", true},
		{"http://a.test", "https://a.test", false},
		{"http://a.test:8080", "http://a.test", false},
		{"http://a.test", "http://b.test", false},
	}
	for _, tc := range cases {
		if got := SameOrigin(mustParse(t, tc.a), mustParse(t, tc.b)); got != tc.want {
			t.Errorf("SameOrigin(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestStripConditional(t *testing.T) {
	h := http.Header{}
	h.Set("If-None-Match", `"abc"`)
	h.Set("Range", "bytes=0-10")
	h.Set("Accept", "image/*")
	StripConditional(h)
	if h.Get("If-None-Match") != "" || h.Get("Range") != "" {
		t.Errorf("conditional headers remain: %v", h)
	}
	if h.Get("Accept") != "image/*" {
		t.Error("unrelated header removed")
	}
}
