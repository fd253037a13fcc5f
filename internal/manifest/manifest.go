// Package manifest reads the portfolio work manifest (work.json).
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ziadkadry99/foliocache/internal/fetch"
)

// DefaultPath is the manifest location relative to the site origin.
const DefaultPath = "work.json"

// Item is one portfolio work entry.
type Item struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images"`
}

// Manifest lists the portfolio's work items.
type Manifest struct {
	Work []Item `json:"work"`
}

// Parse decodes a manifest. A missing work list is treated as empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// ImageURLs flattens every item's images in order, skipping blanks.
func (m *Manifest) ImageURLs() []string {
	var out []string
	for _, item := range m.Work {
		for _, u := range item.Images {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

// Loader fetches the manifest from the site.
type Loader struct {
	fetcher fetch.Fetcher
	url     *url.URL
}

// NewLoader creates a Loader for path resolved against origin.
func NewLoader(fetcher fetch.Fetcher, origin *url.URL, path string) (*Loader, error) {
	if path == "" {
		path = DefaultPath
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest path %q: %w", path, err)
	}
	return &Loader{fetcher: fetcher, url: origin.ResolveReference(ref)}, nil
}

// URL returns the absolute manifest URL.
func (l *Loader) URL() *url.URL { return l.url }

// Load fetches and parses the manifest.
func (l *Loader) Load(ctx context.Context) (*Manifest, error) {
	req, err := fetch.NewRequest(l.url.String(), nil, fetch.WithMode(fetch.ModeSameOrigin))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetching manifest %s: status %d", l.url.Redacted(), resp.StatusCode)
	}
	return Parse(resp.Body)
}
