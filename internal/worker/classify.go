package worker

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ziadkadry99/foliocache/internal/fetch"
)

// DefaultImageExtensions are the file extensions treated as images when a
// request carries no destination.
var DefaultImageExtensions = []string{"png", "jpg", "jpeg", "gif", "webp", "svg"}

// Classifier decides whether a request is image traffic.
type Classifier struct {
	pattern string
}

// NewClassifier builds a Classifier for the given extensions (without the
// leading dot). An empty list uses DefaultImageExtensions.
func NewClassifier(extensions []string) *Classifier {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts = append(exts, e)
		}
	}
	return &Classifier{pattern: "**/*.{" + strings.Join(exts, ",") + "}"}
}

// IsImage reports whether req targets an image, either by destination or
// by the extension of its URL path. The query string never takes part.
func (c *Classifier) IsImage(req *fetch.Request) bool {
	if req.Destination == fetch.DestImage {
		return true
	}
	return c.MatchPath(req.URL.Path)
}

// MatchPath reports whether a URL path ends in one of the image extensions,
// ignoring case.
func (c *Classifier) MatchPath(path string) bool {
	p := strings.TrimLeft(strings.ToLower(path), "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return false
	}
	ok, err := doublestar.Match(c.pattern, p)
	return err == nil && ok
}
