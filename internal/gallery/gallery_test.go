package gallery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/foliocache/internal/manifest"
)

type stubLoader struct {
	m   *manifest.Manifest
	err error
}

func (l stubLoader) Load(context.Context) (*manifest.Manifest, error) { return l.m, l.err }

var origin, _ = url.Parse("https://user.github.io/my-portfolio/")

func render(t *testing.T, loader ManifestLoader) (int, string) {
	t.Helper()
	r := chi.NewRouter()
	RegisterRoutes(r, "/_foliocache", New(loader, origin, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_foliocache/gallery", nil))
	return rec.Code, rec.Body.String()
}

func TestGalleryRendersItems(t *testing.T) {
	code, body := render(t, stubLoader{m: &manifest.Manifest{Work: []manifest.Item{
		{
			Title:       "Brand <refresh>",
			Description: "A **bold** rebrand.\n\n<script>alert(1)</script>",
			Images:      []string{"img/a.png", "https://cdn.test/b.jpg?w=2", " "},
		},
		{Title: "Posters"},
	}}})

	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	checks := []string{
		"Brand &lt;refresh&gt;",
		"<strong>bold</strong>",
		`src="/img/a.png"`,
		`href="https://cdn.test/b.jpg?w=2"`,
		`loading="lazy"`,
		`alt="Brand &lt;refresh&gt; 1"`,
		`alt="Brand &lt;refresh&gt; 2"`,
		"<h2>Posters</h2>",
	}
	for _, want := range checks {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("raw HTML in description must not be rendered")
	}
	if strings.Count(body, "<img ") != 2 {
		t.Errorf("expected 2 images, got %d", strings.Count(body, "<img "))
	}
}

func TestGalleryManifestErrorRendersEmpty(t *testing.T) {
	code, body := render(t, stubLoader{err: errors.New("offline")})
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, "No work to show yet.") {
		t.Error("expected empty gallery message")
	}
}

func TestImageSrc(t *testing.T) {
	g := New(nil, origin, nil)
	cases := []struct {
		in, want string
	}{
		{"img/a.png", "/img/a.png"},
		{"/my-portfolio/img/a.png?v=2", "/img/a.png?v=2"},
		{"/other/a.png", "https://user.github.io/other/a.png"},
		{"https://cdn.test/x.svg", "https://cdn.test/x.svg"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := g.imageSrc(tc.in); got != tc.want {
			t.Errorf("imageSrc(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
