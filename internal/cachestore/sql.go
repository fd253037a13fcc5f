package cachestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ziadkadry99/foliocache/internal/db"
	"github.com/ziadkadry99/foliocache/internal/fetch"
)

// SQLStorage persists caches in the foliocache SQLite database.
type SQLStorage struct {
	db *db.DB
}

// NewSQLStorage creates a SQLStorage backed by the given database.
func NewSQLStorage(database *db.DB) *SQLStorage {
	return &SQLStorage{db: database}
}

func (s *SQLStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, fmt.Errorf("cache name is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO caches (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", name, err)
	}
	return &sqlCache{db: s.db, name: name}, nil
}

func (s *SQLStorage) Lookup(ctx context.Context, name string) (Cache, error) {
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM caches WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up cache %s: %w", name, err)
	}
	return &sqlCache{db: s.db, name: found}, nil
}

func (s *SQLStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning delete of cache %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, name); err != nil {
		return false, fmt.Errorf("deleting entries of cache %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("deleting cache %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete of cache %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM caches ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type sqlCache struct {
	db   *db.DB
	name string
}

func (c *sqlCache) Name() string { return c.name }

func (c *sqlCache) Match(ctx context.Context, req *fetch.Request, opts MatchOptions) (*fetch.Response, bool, error) {
	query := `SELECT response_type, response_url, status, header, body FROM cache_entries
		WHERE cache_name = ? AND method = ? AND url = ?`
	arg := keyURL(req.URL)
	if opts.IgnoreSearch {
		query = `SELECT response_type, response_url, status, header, body FROM cache_entries
			WHERE cache_name = ? AND method = ? AND url_base = ? ORDER BY url LIMIT 1`
		arg = withoutSearch(req.URL)
	}

	var (
		respType, respURL, headerJSON string
		status                        int
		body                          []byte
	)
	err := c.db.QueryRowContext(ctx, query, c.name, requestMethod(req), arg).
		Scan(&respType, &respURL, &status, &headerJSON, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("matching %s in cache %s: %w", req.URL.Redacted(), c.name, err)
	}

	header := make(http.Header)
	if err := json.Unmarshal([]byte(headerJSON), &header); err != nil {
		return nil, false, fmt.Errorf("decoding stored header for %s: %w", req.URL.Redacted(), err)
	}
	if body == nil {
		body = []byte{}
	}

	return &fetch.Response{
		Type:       fetch.ResponseType(respType),
		URL:        respURL,
		StatusCode: status,
		Header:     header,
		Body:       body,
	}, true, nil
}

func (c *sqlCache) Put(ctx context.Context, req *fetch.Request, resp *fetch.Response) error {
	header, err := json.Marshal(fetch.CleanHeader(resp.Header))
	if err != nil {
		return fmt.Errorf("marshalling header: %w", err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	respType := resp.Type
	if respType == "" {
		respType = fetch.TypeBasic
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (
			cache_name, method, url, url_base, response_type, response_url,
			status, header, body, stored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_name, method, url) DO UPDATE SET
			url_base = excluded.url_base,
			response_type = excluded.response_type,
			response_url = excluded.response_url,
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at`,
		c.name,
		requestMethod(req),
		keyURL(req.URL),
		withoutSearch(req.URL),
		string(respType),
		resp.URL,
		resp.StatusCode,
		string(header),
		body,
		time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("storing %s in cache %s: %w", req.URL.Redacted(), c.name, err)
	}
	return nil
}

func (c *sqlCache) Delete(ctx context.Context, req *fetch.Request, opts MatchOptions) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if opts.IgnoreSearch {
		res, err = c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE rowid = (
			SELECT rowid FROM cache_entries WHERE cache_name = ? AND method = ? AND url_base = ? ORDER BY url LIMIT 1)`,
			c.name, requestMethod(req), withoutSearch(req.URL))
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ? AND method = ? AND url = ?`,
			c.name, requestMethod(req), keyURL(req.URL))
	}
	if err != nil {
		return false, fmt.Errorf("deleting %s from cache %s: %w", req.URL.Redacted(), c.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *sqlCache) Keys(ctx context.Context) ([]EntryInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT method, url, response_type, status, length(body), stored_at
		FROM cache_entries WHERE cache_name = ? ORDER BY url, method`, c.name)
	if err != nil {
		return nil, fmt.Errorf("listing cache %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []EntryInfo
	for rows.Next() {
		var (
			e        EntryInfo
			respType string
			ts       string
		)
		if err := rows.Scan(&e.Method, &e.URL, &respType, &e.StatusCode, &e.Size, &ts); err != nil {
			return nil, err
		}
		e.Type = fetch.ResponseType(respType)
		if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
			e.StoredAt = t
		} else if t, parseErr := time.Parse(time.RFC3339, ts); parseErr == nil {
			e.StoredAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
