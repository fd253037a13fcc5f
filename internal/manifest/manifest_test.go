package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ziadkadry99/foliocache/internal/fetch"
)

const sample = `{
  "work": [
    {"title": "Brand refresh", "images": ["img/brand-1.png", "img/brand-2.jpg"]},
    {"title": "Empty", "images": []},
    {"title": "No images"},
    {"title": "Posters", "description": "Print **series**", "images": ["", "https://cdn.test/poster.webp"]}
  ]
}`

func TestParseAndFlatten(t *testing.T) {
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Work) != 4 {
		t.Fatalf("len(Work) = %d, want 4", len(m.Work))
	}
	if m.Work[3].Description != "Print **series**" {
		t.Errorf("Description = %q", m.Work[3].Description)
	}

	got := m.ImageURLs()
	want := []string{"img/brand-1.png", "img/brand-2.jpg", "https://cdn.test/poster.webp"}
	if len(got) != len(want) {
		t.Fatalf("ImageURLs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ImageURLs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseMissingWork(t *testing.T) {
	m, err := Parse([]byte(`{"other": true}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.ImageURLs()) != 0 {
		t.Error("expected no images")
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte(`{"work": "nope"}`)); err == nil {
		t.Error("expected error for non-list work")
	}
	if _, err := Parse([]byte(`<html>`)); err == nil {
		t.Error("expected error for non-JSON")
	}
}

func TestLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/site/work.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(sample))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	origin, _ := url.Parse(srv.URL + "/site/")
	client := fetch.NewClient(origin)

	l, err := NewLoader(client, origin, "")
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if l.URL().String() != srv.URL+"/site/work.json" {
		t.Errorf("URL = %s", l.URL())
	}
	m, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.ImageURLs()) != 3 {
		t.Errorf("ImageURLs = %v", m.ImageURLs())
	}

	missing, _ := NewLoader(client, origin, "/nope.json")
	if _, err := missing.Load(context.Background()); err == nil {
		t.Error("expected error for 404 manifest")
	}
}
