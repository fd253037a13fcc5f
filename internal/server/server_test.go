package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ziadkadry99/foliocache/internal/cachestore"
	"github.com/ziadkadry99/foliocache/internal/fetch"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

func TestHealthCheck(t *testing.T) {
	srv := New(Config{Port: 0}, worker.NewRegistration(nil), nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body health
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", body.Status)
	}
	if body.Worker != nil {
		t.Errorf("expected no worker, got %+v", body.Worker)
	}
}

func TestHealthCheckReportsWorker(t *testing.T) {
	reg := worker.NewRegistration(nil)
	network := fetch.FetcherFunc(func(context.Context, *fetch.Request) (*fetch.Response, error) {
		return nil, context.Canceled
	})
	w := worker.New(cachestore.NewMemoryStorage(), network, worker.Options{SkipWaiting: true})
	if err := reg.Register(context.Background(), w); err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer reg.Unregister(context.Background())
	reg.Connect("https://site.test/")

	srv := New(Config{}, reg, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	var body health
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Worker == nil || body.Worker.State != "active" || body.Worker.Cache != worker.DefaultCacheName {
		t.Errorf("worker = %+v", body.Worker)
	}
	if body.Clients != 1 {
		t.Errorf("clients = %d, want 1", body.Clients)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := New(Config{Port: 0, AllowAll: true}, nil, nil)
	srv.API().Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("OPTIONS", Prefix+"/api/ping", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestSiteCatchAll(t *testing.T) {
	srv := New(Config{}, nil, nil)
	srv.Site(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("site:" + r.URL.Path))
	}))

	for _, path := range []string{"/", "/img/a.png", "/deep/nested/page.html"} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Body.String() != "site:"+path {
			t.Errorf("%s: body = %q", path, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Error("/healthz should not be routed to the site")
	}
}
