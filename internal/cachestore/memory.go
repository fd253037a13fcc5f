package cachestore

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ziadkadry99/foliocache/internal/fetch"
)

// MemoryStorage keeps caches in process memory.
type MemoryStorage struct {
	mu     sync.Mutex
	caches map[string]*memoryCache
	order  []string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c := &memoryCache{name: name, entries: make(map[string]memoryEntry)}
	s.caches[name] = c
	s.order = append(s.order, name)
	return c, nil
}

func (s *MemoryStorage) Lookup(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

type memoryEntry struct {
	method   string
	url      string
	base     string
	resp     *fetch.Response
	storedAt time.Time
}

type memoryCache struct {
	name    string
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func (c *memoryCache) Name() string { return c.name }

func (c *memoryCache) find(req *fetch.Request, opts MatchOptions) (string, memoryEntry, bool) {
	method := requestMethod(req)
	if !opts.IgnoreSearch {
		key := method + " " + keyURL(req.URL)
		e, ok := c.entries[key]
		return key, e, ok
	}
	base := withoutSearch(req.URL)
	// Deterministic pick among several query variants: lowest URL wins.
	var (
		bestKey string
		best    memoryEntry
		found   bool
	)
	for key, e := range c.entries {
		if e.method != method || e.base != base {
			continue
		}
		if !found || e.url < best.url {
			bestKey, best, found = key, e, true
		}
	}
	return bestKey, best, found
}

func (c *memoryCache) Match(_ context.Context, req *fetch.Request, opts MatchOptions) (*fetch.Response, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, e, ok := c.find(req, opts)
	if !ok {
		return nil, false, nil
	}
	return e.resp.Clone(), true, nil
}

func (c *memoryCache) Put(_ context.Context, req *fetch.Request, resp *fetch.Response) error {
	method := requestMethod(req)
	u := keyURL(req.URL)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[method+" "+u] = memoryEntry{
		method:   method,
		url:      u,
		base:     withoutSearch(req.URL),
		resp:     resp.Clone(),
		storedAt: time.Now().UTC(),
	}
	return nil
}

func (c *memoryCache) Delete(_ context.Context, req *fetch.Request, opts MatchOptions) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, _, ok := c.find(req, opts)
	if ok {
		delete(c.entries, key)
	}
	return ok, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]EntryInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]EntryInfo, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, EntryInfo{
			Method:     e.method,
			URL:        e.url,
			Type:       e.resp.Type,
			StatusCode: e.resp.StatusCode,
			Size:       len(e.resp.Body),
			StoredAt:   e.storedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].URL == out[j].URL {
			return out[i].Method < out[j].Method
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

func requestMethod(req *fetch.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}
