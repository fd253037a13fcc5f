// Package cacheadmin exposes the named caches over HTTP.
package cacheadmin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/foliocache/internal/cachestore"
	"github.com/ziadkadry99/foliocache/internal/fetch"
)

// RegisterRoutes mounts cache endpoints under prefix+"/api/caches".
func RegisterRoutes(r chi.Router, prefix string, storage cachestore.Storage) {
	r.Route(prefix+"/api/caches", func(r chi.Router) {
		r.Get("/", handleList(storage))
		r.Get("/{name}", handleEntries(storage))
		r.Delete("/{name}", handleDelete(storage))
		r.Delete("/{name}/entries", handleDeleteEntry(storage))
	})
}

func handleList(storage cachestore.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := cachestore.Summarize(r.Context(), storage)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleEntries(storage cachestore.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cache, err := storage.Lookup(r.Context(), chi.URLParam(r, "name"))
		if errors.Is(err, cachestore.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		entries, err := cache.Keys(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []cachestore.EntryInfo{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleDelete(storage cachestore.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := storage.Delete(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDeleteEntry removes one entry, named by the url query parameter.
// ignore_search=true matches regardless of the entry's query string.
func handleDeleteEntry(storage cachestore.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		raw := q.Get("url")
		if raw == "" {
			http.Error(w, "url is required", http.StatusBadRequest)
			return
		}
		req, err := fetch.NewRequest(raw, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		cache, err := storage.Lookup(r.Context(), chi.URLParam(r, "name"))
		if errors.Is(err, cachestore.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		opts := cachestore.MatchOptions{IgnoreSearch: q.Get("ignore_search") == "true"}
		deleted, err := cache.Delete(r.Context(), req, opts)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
