// Package cachestore holds named persistent request/response caches.
//
// A Storage owns any number of named caches. A Cache maps a request
// identity (method and URL) to a buffered response snapshot. There is no
// expiry: entries live until their cache is deleted, so renaming the cache
// is how callers invalidate everything at once.
package cachestore

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/ziadkadry99/foliocache/internal/fetch"
)

// ErrNotFound is returned when a named cache does not exist.
var ErrNotFound = errors.New("cache not found")

// MatchOptions tunes how a request is compared with stored keys.
type MatchOptions struct {
	// IgnoreSearch drops the query string from both sides of the comparison.
	IgnoreSearch bool
}

// EntryInfo describes a stored entry without its body.
type EntryInfo struct {
	Method     string             `json:"method"`
	URL        string             `json:"url"`
	Type       fetch.ResponseType `json:"type"`
	StatusCode int                `json:"status"`
	Size       int                `json:"size"`
	StoredAt   time.Time          `json:"stored_at"`
}

// Cache is a single named request/response store.
type Cache interface {
	Name() string
	// Match returns a copy of the stored response for req. ok is false on a miss.
	Match(ctx context.Context, req *fetch.Request, opts MatchOptions) (resp *fetch.Response, ok bool, err error)
	// Put stores a copy of resp under req, replacing any previous entry.
	Put(ctx context.Context, req *fetch.Request, resp *fetch.Response) error
	// Delete removes the entry for req and reports whether one existed.
	Delete(ctx context.Context, req *fetch.Request, opts MatchOptions) (bool, error)
	// Keys lists stored entries ordered by URL.
	Keys(ctx context.Context) ([]EntryInfo, error)
}

// Storage manages the set of named caches.
type Storage interface {
	// Open returns the named cache, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	// Lookup returns the named cache or ErrNotFound without creating it.
	Lookup(ctx context.Context, name string) (Cache, error)
	// Delete drops the named cache and every entry in it.
	Delete(ctx context.Context, name string) (bool, error)
	// Names lists existing caches in creation order.
	Names(ctx context.Context) ([]string, error)
}

// Stats summarises one cache.
type Stats struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Summarize computes Stats for every cache in s.
func Summarize(ctx context.Context, s Storage) ([]Stats, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		c, err := s.Lookup(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		keys, err := c.Keys(ctx)
		if err != nil {
			return nil, err
		}
		st := Stats{Name: name, Entries: len(keys)}
		for _, k := range keys {
			st.Bytes += int64(k.Size)
		}
		out = append(out, st)
	}
	return out, nil
}

// withoutSearch returns the canonical form of u with its query removed.
func withoutSearch(u *url.URL) string {
	c := *u
	c.RawPath = ""
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// keyURL is the cache identity of u. The path is always re-escaped from
// its decoded form so equivalent spellings share one key. The fragment
// never takes part.
func keyURL(u *url.URL) string {
	c := *u
	c.RawPath = ""
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
