// Package gallery renders the work manifest as an HTML page.
package gallery

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"

	"github.com/ziadkadry99/foliocache/internal/logging"
	"github.com/ziadkadry99/foliocache/internal/manifest"
)

// ManifestLoader loads the work manifest.
type ManifestLoader interface {
	Load(ctx context.Context) (*manifest.Manifest, error)
}

// Gallery renders manifest items.
type Gallery struct {
	loader ManifestLoader
	origin *url.URL
	title  string
	md     goldmark.Markdown
	tmpl   *template.Template
	logger *slog.Logger
}

type pageData struct {
	Title string
	Items []itemData
}

type itemData struct {
	Title       string
	Description template.HTML
	Images      []imageData
}

type imageData struct {
	Src string
	Alt string
}

// New creates a Gallery. Relative image URLs are resolved against origin
// and rewritten to paths served by the proxy.
func New(loader ManifestLoader, origin *url.URL, logger *slog.Logger) *Gallery {
	if logger == nil {
		logger = logging.Nop()
	}
	// Raw HTML in descriptions is omitted: no html.WithUnsafe.
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
	)
	return &Gallery{
		loader: loader,
		origin: origin,
		title:  "Work",
		md:     md,
		tmpl:   template.Must(template.New("gallery").Parse(pageTemplate)),
		logger: logger,
	}
}

// RegisterRoutes mounts the gallery page under prefix.
func RegisterRoutes(r chi.Router, prefix string, g *Gallery) {
	r.Get(prefix+"/gallery", g.ServeHTTP)
}

// ServeHTTP renders the gallery. A manifest that cannot be loaded renders
// as an empty gallery.
func (g *Gallery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, err := g.loader.Load(r.Context())
	if err != nil {
		g.logger.Warn("loading manifest for gallery", "error", err)
		m = &manifest.Manifest{}
	}

	var buf bytes.Buffer
	if err := g.Render(&buf, m); err != nil {
		g.logger.Error("rendering gallery", "error", err)
		http.Error(w, "rendering gallery", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// Render writes the gallery page for m.
func (g *Gallery) Render(w io.Writer, m *manifest.Manifest) error {
	data := pageData{Title: g.title}
	for _, item := range m.Work {
		d := itemData{Title: item.Title}
		if strings.TrimSpace(item.Description) != "" {
			var desc bytes.Buffer
			if err := g.md.Convert([]byte(item.Description), &desc); err != nil {
				return fmt.Errorf("converting description of %q: %w", item.Title, err)
			}
			d.Description = template.HTML(desc.String())
		}
		for _, img := range item.Images {
			if src := g.imageSrc(img); src != "" {
				alt := fmt.Sprintf("%s %d", item.Title, len(d.Images)+1)
				d.Images = append(d.Images, imageData{Src: src, Alt: alt})
			}
		}
		data.Items = append(data.Items, d)
	}
	return g.tmpl.Execute(w, data)
}

// imageSrc maps a manifest image to the URL a page behind the proxy
// should use. Same-origin images under the origin path become proxy paths.
func (g *Gallery) imageSrc(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if g.origin == nil {
		return ref.String()
	}
	u := g.origin.ResolveReference(ref)
	if u.Scheme != g.origin.Scheme || u.Host != g.origin.Host || !strings.HasPrefix(u.Path, g.origin.Path) {
		return u.String()
	}
	out := url.URL{
		Path:     "/" + strings.TrimLeft(strings.TrimPrefix(u.Path, g.origin.Path), "/"),
		RawQuery: u.RawQuery,
	}
	return out.String()
}
